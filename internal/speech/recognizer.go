package speech

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/liuscraft/orion-speech/internal/epd"
	"github.com/liuscraft/orion-speech/internal/logging"
)

// Recognizer owns at most one recognition session at a time. Every state
// transition happens under mu; callbacks are queued in transition order and
// delivered by a single goroutine, so a listener may call back into the
// Recognizer.
type Recognizer struct {
	opts Options

	mu      sync.Mutex
	config  Configuration
	session *session
	closed  bool

	listener atomic.Pointer[ListenerHandle]
	dispatch *dispatcher
}

func NewRecognizer(cfg Configuration, opts Options) (*Recognizer, error) {
	if opts.Opener == nil {
		return nil, errors.New("speech: audio opener is required")
	}
	if opts.Dialer == nil {
		return nil, errors.New("speech: transport dialer is required")
	}
	return &Recognizer{
		opts:     opts.withDefaults(),
		config:   cfg,
		dispatch: newDispatcher(),
	}, nil
}

// SetConfiguration replaces the configuration used by the next Start.
func (r *Recognizer) SetConfiguration(cfg Configuration) {
	r.mu.Lock()
	r.config = cfg
	r.mu.Unlock()
}

func (r *Recognizer) Configuration() Configuration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

// SetListener registers l and revokes the previous registration. A nil
// listener only revokes.
func (r *Recognizer) SetListener(l Listener) *ListenerHandle {
	var h *ListenerHandle
	if l != nil {
		h = newListenerHandle(l)
	}
	if old := r.listener.Swap(h); old != nil {
		old.Revoke()
	}
	return h
}

// Start begins a session. Acquisition of audio and network happens in the
// background; EnteredReady reports completion.
func (r *Recognizer) Start(lang LanguageCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecognizerClosed
	}
	if r.session != nil {
		return newSDKError(SDKErrorAlreadyRunning, nil)
	}
	if !lang.Valid() {
		return newSDKError(SDKErrorInvalidLanguageCode, fmt.Errorf("language code %d", int(lang)))
	}
	cfg := r.config
	if err := cfg.Validate(); err != nil {
		return err
	}

	s, err := newSession(r, cfg, lang)
	if err != nil {
		return err
	}
	s.sm.Transition(StateStarting)
	r.session = s
	s.log.Infof("session starting (lang=%s epd=%s)", lang, cfg.EPDType)

	go s.run()
	return nil
}

// Stop ends speech manually. Only accepted while Recording.
func (r *Recognizer) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.session
	if s == nil || s.state() != StateRecording {
		return false
	}
	s.log.Infof("stop requested")
	r.endPointLocked(s)
	return true
}

// Cancel aborts the session silently. Callbacks not yet delivered for it are
// dropped.
func (r *Recognizer) Cancel() bool {
	r.mu.Lock()
	s := r.session
	if s == nil {
		r.mu.Unlock()
		return false
	}
	r.abandonLocked(s)
	r.mu.Unlock()

	s.log.Infof("session cancelled")
	go s.release()
	return true
}

// SetEPDType picks the detector of a Hybrid session. It succeeds at most once
// per session, and only before the end point.
func (r *Recognizer) SetEPDType(t epd.Type) bool {
	if t != epd.Auto && t != epd.Manual {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.session
	if s == nil || s.selector == nil || s.selection != epd.None {
		return false
	}
	switch s.state() {
	case StateStarting, StateReady, StateRecording:
	default:
		return false
	}
	s.log.Infof("epd type selected: %s", t)
	r.resolveLocked(s, t)
	return true
}

func (r *Recognizer) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// State returns the active session's state, or StateIdle.
func (r *Recognizer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return StateIdle
	}
	return r.session.state()
}

func (r *Recognizer) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return ""
	}
	return r.session.id
}

// EPDType returns the detector governing the active session, or epd.None
// while a Hybrid selection is pending or no session runs.
func (r *Recognizer) EPDType() epd.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return epd.None
	}
	return r.session.selection
}

// Close cancels any session and stops callback delivery once the queue drains.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	s := r.session
	if s != nil {
		r.abandonLocked(s)
	}
	r.mu.Unlock()

	if s != nil {
		s.release()
	}
	r.dispatch.stop()
	logging.Debugf("speech: recognizer closed")
	return nil
}

func (r *Recognizer) emit(s *session, fn func(h *ListenerHandle)) {
	r.dispatch.enqueue(s, func() {
		fn(r.listener.Load())
	})
}

func (r *Recognizer) abandonLocked(s *session) {
	s.cancelled.Store(true)
	s.stopHybridTimer()
	s.sm.Transition(StateInactive)
	r.session = nil
}

// finishLocked ends a session that reached Inactive through a result or an error.
func (r *Recognizer) finishLocked(s *session) {
	r.session = nil
	go s.release()
}

func (r *Recognizer) failLocked(s *session, e *Error) {
	if r.session != s {
		return
	}
	s.stopHybridTimer()
	s.heldPartials = nil
	s.sm.Transition(StateInactive)
	s.log.Errorf("session failed: %v", e)

	r.emit(s, func(h *ListenerHandle) { h.didReceiveError(r, e) })
	r.emit(s, func(h *ListenerHandle) { h.enteredInactive(r) })
	r.finishLocked(s)
}

// endPointLocked moves Recording to Finalizing: capture stops and the server
// is told no more audio follows.
func (r *Recognizer) endPointLocked(s *session) {
	s.stopHybridTimer()
	if !s.sm.Transition(StateEndPointDetected) {
		return
	}
	r.flushPartialsLocked(s)
	r.emit(s, func(h *ListenerHandle) { h.didDetectEndPoint(r) })
	go s.closeSource()

	if err := s.channel.Finish(); err != nil {
		r.failLocked(s, fromRuntime(err))
		return
	}
	s.sm.Transition(StateFinalizing)
}

func (r *Recognizer) resolveLocked(s *session, t epd.Type) {
	if err := s.selector.Resolve(t); err != nil {
		s.log.Warnf("epd resolve: %v", err)
		return
	}
	s.selection = t
	s.stopHybridTimer()
	if s.state() == StateRecording {
		r.announceSelectionLocked(s)
	}
}

func (r *Recognizer) announceSelectionLocked(s *session) {
	t := s.selection
	r.emit(s, func(h *ListenerHandle) { h.didSelectEndPointDetectType(r, t) })
	r.flushPartialsLocked(s)
}

func (r *Recognizer) flushPartialsLocked(s *session) {
	for _, text := range s.heldPartials {
		r.emit(s, func(h *ListenerHandle) { h.didReceivePartialResult(r, text) })
	}
	s.heldPartials = nil
}

func (r *Recognizer) autoResolve(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != s || s.selection != epd.None || s.state() != StateRecording {
		return
	}
	s.log.Infof("hybrid window elapsed, falling back to %s", epd.Auto)
	r.resolveLocked(s, epd.Auto)
}
