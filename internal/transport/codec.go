package transport

import (
	"fmt"

	"github.com/goccy/go-json"
)

const (
	eventStart   = "start"
	eventFinish  = "finish"
	eventStarted = "started"
	eventPartial = "partial"
	eventFinal   = "final"
	eventError   = "error"
	eventPing    = "ping"
)

type envelope struct {
	Event      string      `json:"event"`
	TaskID     string      `json:"task_id,omitempty"`
	Handshake  *Handshake  `json:"handshake,omitempty"`
	Text       string      `json:"text,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
	Gender     int         `json:"gender,omitempty"`
	Code       int         `json:"code,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

func encodeStart(hs Handshake) ([]byte, error) {
	return json.Marshal(envelope{Event: eventStart, TaskID: hs.TaskID, Handshake: &hs})
}

func encodeFinish(taskID string) ([]byte, error) {
	return json.Marshal(envelope{Event: eventFinish, TaskID: taskID})
}

// decodeMessage returns ok=false for control events that carry no message.
func decodeMessage(data []byte) (msg Message, ok bool, err error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, false, err
	}
	switch env.Event {
	case eventStarted, eventPing:
		return Message{}, false, nil
	case eventPartial:
		return Message{Kind: KindPartial, Text: env.Text}, true, nil
	case eventFinal:
		msg := Message{
			Kind:       KindFinal,
			Text:       env.Text,
			Candidates: env.Candidates,
			Gender:     env.Gender,
		}
		if len(msg.Candidates) == 0 && env.Text != "" {
			msg.Candidates = []Candidate{{Text: env.Text, Confidence: 1}}
		}
		return msg, true, nil
	case eventError:
		return Message{Kind: KindError, Code: env.Code, Reason: env.Reason}, true, nil
	default:
		return Message{}, false, fmt.Errorf("%w %q", ErrUnknownEvent, env.Event)
	}
}
