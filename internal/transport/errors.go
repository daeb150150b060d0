package transport

import (
	"errors"
	"fmt"
)

var (
	ErrFrameTooLarge = errors.New("transport: frame exceeds max size")
	ErrTimeout       = errors.New("transport: inactivity timeout")
	ErrClosed        = errors.New("transport: channel closed")
	ErrFinished      = errors.New("transport: audio already finished")
	ErrUnknownEvent  = errors.New("transport: unknown event")
)

// ServerError 服务端拒绝或报错
type ServerError struct {
	Code   int
	Reason string
}

func (e *ServerError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("server error %d", e.Code)
	}
	return fmt.Sprintf("server error %d: %s", e.Code, e.Reason)
}

type Op string

const (
	OpDial   Op = "dial"
	OpRead   Op = "read"
	OpWrite  Op = "write"
	OpDecode Op = "decode"
)

// OpError records which side of the connection failed.
type OpError struct {
	Op  Op
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// FailedOp returns the Op of the first *OpError in err's chain.
func FailedOp(err error) (Op, bool) {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Op, true
	}
	return "", false
}
