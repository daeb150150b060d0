package speech

import "slices"

// State 识别会话状态
type State int

const (
	StateIdle State = iota
	StateStarting
	StateReady
	StateRecording
	StateEndPointDetected
	StateFinalizing
	StateInactive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateRecording:
		return "recording"
	case StateEndPointDetected:
		return "end_point_detected"
	case StateFinalizing:
		return "finalizing"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

var validTransitions = map[State][]State{
	StateIdle:             {StateStarting},
	StateStarting:         {StateReady, StateInactive},
	StateReady:            {StateRecording, StateInactive},
	StateRecording:        {StateEndPointDetected, StateInactive},
	StateEndPointDetected: {StateFinalizing, StateInactive},
	StateFinalizing:       {StateInactive},
}

// StateMachine 状态机，不做并发保护，由 Recognizer 的锁串行化
type StateMachine struct {
	currentState State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState: StateIdle,
	}
}

// CanTransition 检查是否可以转换
func (sm *StateMachine) CanTransition(to State) bool {
	validTo, ok := validTransitions[sm.currentState]
	if !ok {
		return false
	}
	return slices.Contains(validTo, to)
}

// Transition 状态转换
func (sm *StateMachine) Transition(to State) bool {
	if sm.CanTransition(to) {
		sm.currentState = to
		return true
	}
	return false
}

// GetCurrentState 获取当前状态
func (sm *StateMachine) GetCurrentState() State {
	return sm.currentState
}
