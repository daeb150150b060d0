package transport

import (
	"context"
	"time"
)

type MessageKind int

const (
	KindPartial MessageKind = iota
	KindFinal
	KindError
)

func (k MessageKind) String() string {
	switch k {
	case KindPartial:
		return "partial"
	case KindFinal:
		return "final"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Candidate 服务端返回的一条识别候选
type Candidate struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Message 服务端下行消息
type Message struct {
	Kind       MessageKind
	Text       string
	Candidates []Candidate
	Gender     int
	Code       int
	Reason     string
}

// Handshake is sent once, right after the connection is established.
type Handshake struct {
	SessionID        string `json:"session_id"`
	TaskID           string `json:"task_id"`
	ClientID         string `json:"client_id"`
	Version          string `json:"version"`
	Device           string `json:"device"`
	OSVersion        string `json:"os_version"`
	BundleIdentifier string `json:"bundle_identifier,omitempty"`
	Language         string `json:"language"`
	QuestionDetected bool   `json:"question_detected"`
	EPDType          string `json:"epd_type"`
	SampleRate       int    `json:"sample_rate"`
	Channels         int    `json:"channels"`
}

type Options struct {
	// Timeout closes the channel for reading when nothing was sent or
	// received for this long.
	Timeout time.Duration
	// MaxFrameSize is the largest audio frame Send accepts, in bytes.
	MaxFrameSize int
}

func DefaultOptions() Options {
	return Options{
		Timeout:      10 * time.Second,
		MaxFrameSize: 32000,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = def.MaxFrameSize
	}
	return o
}

// Dialer 建立到识别服务的双工连接
type Dialer interface {
	Dial(ctx context.Context, hs Handshake) (Channel, error)
}

// Channel is one recognition stream. Send and Finish never block on the
// network; writes happen in order on a single writer goroutine.
type Channel interface {
	Send(frame []byte) error
	Finish() error
	// Receive returns the next partial or final message. Server error
	// events are returned as *ServerError.
	Receive(ctx context.Context) (Message, error)
	// Expired is closed once the inactivity timeout elapses, whether or not
	// anyone is receiving.
	Expired() <-chan struct{}
	Close() error
}
