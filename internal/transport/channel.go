package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/liuscraft/orion-speech/internal/logging"
)

// wire is the framing a concrete transport provides. Writes come from the
// writer goroutine only, reads from the reader goroutine only.
type wire interface {
	WriteAudio(frame []byte) error
	WriteControl(payload []byte) error
	// ReadPacket blocks for the next inbound payload and fails once Close
	// has been called.
	ReadPacket() ([]byte, error)
	Close() error
}

type outbound struct {
	audio   []byte
	control []byte
}

type inbound struct {
	msg Message
	err error
}

// channel drives a wire: an ordered writer goroutine, a reader goroutine and
// an inactivity watchdog.
type channel struct {
	w      wire
	opts   Options
	taskID string

	mu       sync.Mutex
	queue    []outbound
	finished bool
	closed   bool
	notify   chan struct{}

	inbound   chan inbound
	closeCh   chan struct{}
	closeOnce sync.Once
	closeErr  error

	watchdog    *time.Timer
	timeoutCh   chan struct{}
	timeoutOnce sync.Once
}

func newChannel(w wire, opts Options, taskID string) *channel {
	c := &channel{
		w:         w,
		opts:      opts.withDefaults(),
		taskID:    taskID,
		notify:    make(chan struct{}, 1),
		inbound:   make(chan inbound, 32),
		closeCh:   make(chan struct{}),
		timeoutCh: make(chan struct{}),
	}
	c.watchdog = time.AfterFunc(c.opts.Timeout, c.expire)
	go c.writeLoop()
	go c.readLoop()
	return c
}

func (c *channel) Send(frame []byte) error {
	if len(frame) > c.opts.MaxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	return c.enqueue(outbound{audio: buf}, false)
}

func (c *channel) Finish() error {
	payload, err := encodeFinish(c.taskID)
	if err != nil {
		return err
	}
	return c.enqueue(outbound{control: payload}, true)
}

func (c *channel) enqueue(item outbound, finish bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.finished {
		c.mu.Unlock()
		if finish {
			return nil
		}
		return ErrFinished
	}
	c.queue = append(c.queue, item)
	c.finished = finish
	c.mu.Unlock()

	c.touch()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *channel) Receive(ctx context.Context) (Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	// already buffered messages win over the watchdog
	select {
	case in := <-c.inbound:
		return in.unpack()
	default:
	}

	select {
	case in := <-c.inbound:
		return in.unpack()
	case <-c.timeoutCh:
		return Message{}, ErrTimeout
	case <-c.closeCh:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (in inbound) unpack() (Message, error) {
	if in.err != nil {
		return Message{}, in.err
	}
	if in.msg.Kind == KindError {
		return Message{}, &ServerError{Code: in.msg.Code, Reason: in.msg.Reason}
	}
	return in.msg, nil
}

func (c *channel) Expired() <-chan struct{} {
	return c.timeoutCh
}

func (c *channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.queue = nil
		c.mu.Unlock()

		close(c.closeCh)
		c.watchdog.Stop()
		c.closeErr = c.w.Close()
	})
	return c.closeErr
}

func (c *channel) writeLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case <-c.notify:
		}

		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()

		for _, item := range batch {
			var err error
			if item.control != nil {
				err = c.w.WriteControl(item.control)
			} else {
				err = c.w.WriteAudio(item.audio)
			}
			if err != nil {
				if c.isClosed() {
					return
				}
				logging.Warnf("transport: write failed (task=%s): %v", c.taskID, err)
				c.deliver(inbound{err: &OpError{Op: OpWrite, Err: err}})
				return
			}
		}
	}
}

func (c *channel) readLoop() {
	for {
		data, err := c.w.ReadPacket()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.deliver(inbound{err: &OpError{Op: OpRead, Err: err}})
			return
		}
		c.touch()

		msg, ok, err := decodeMessage(data)
		if err != nil {
			c.deliver(inbound{err: &OpError{Op: OpDecode, Err: err}})
			return
		}
		if !ok {
			continue
		}
		if !c.deliver(inbound{msg: msg}) {
			return
		}
	}
}

func (c *channel) deliver(in inbound) bool {
	select {
	case c.inbound <- in:
		return true
	case <-c.closeCh:
		return false
	}
}

func (c *channel) touch() {
	select {
	case <-c.timeoutCh:
		return
	default:
	}
	c.watchdog.Reset(c.opts.Timeout)
}

func (c *channel) expire() {
	if c.isClosed() {
		return
	}
	c.timeoutOnce.Do(func() { close(c.timeoutCh) })
}

func (c *channel) isClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// IsTimeout reports whether err came from the inactivity watchdog.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
