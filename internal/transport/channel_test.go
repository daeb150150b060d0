package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeWire struct {
	mu       sync.Mutex
	audio    [][]byte
	controls [][]byte
	writeErr error

	packets chan []byte
	closeCh chan struct{}
	once    sync.Once
	closes  int
}

func newFakeWire() *fakeWire {
	return &fakeWire{
		packets: make(chan []byte, 16),
		closeCh: make(chan struct{}),
	}
}

func (w *fakeWire) WriteAudio(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.audio = append(w.audio, frame)
	return nil
}

func (w *fakeWire) WriteControl(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.controls = append(w.controls, payload)
	return nil
}

func (w *fakeWire) ReadPacket() ([]byte, error) {
	select {
	case p := <-w.packets:
		return p, nil
	case <-w.closeCh:
		return nil, ErrClosed
	}
}

func (w *fakeWire) Close() error {
	w.mu.Lock()
	w.closes++
	w.mu.Unlock()
	w.once.Do(func() { close(w.closeCh) })
	return nil
}

func (w *fakeWire) written() (audio, controls int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.audio), len(w.controls)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestChannel_SendPreservesOrder(t *testing.T) {
	w := newFakeWire()
	c := newChannel(w, Options{Timeout: time.Second, MaxFrameSize: 8}, "task-1")
	defer c.Close()

	for i := 0; i < 5; i++ {
		if err := c.Send([]byte{byte(i)}); err != nil {
			t.Fatalf("Send(%d) error = %v", i, err)
		}
	}
	if err := c.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := c.Finish(); err != nil {
		t.Fatalf("second Finish() should be a no-op, got %v", err)
	}
	if err := c.Send([]byte{9}); !errors.Is(err, ErrFinished) {
		t.Fatalf("expected ErrFinished after Finish, got %v", err)
	}

	waitFor(t, func() bool {
		a, ctrl := w.written()
		return a == 5 && ctrl == 1
	})
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, frame := range w.audio {
		if frame[0] != byte(i) {
			t.Fatalf("frame %d out of order: %v", i, frame)
		}
	}
}

func TestChannel_SendCopiesFrame(t *testing.T) {
	w := newFakeWire()
	c := newChannel(w, Options{Timeout: time.Second, MaxFrameSize: 8}, "task-1")
	defer c.Close()

	frame := []byte{1, 2}
	if err := c.Send(frame); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	frame[0] = 7
	waitFor(t, func() bool { a, _ := w.written(); return a == 1 })
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.audio[0][0] != 1 {
		t.Fatal("Send must copy the caller's buffer")
	}
}

func TestChannel_FrameTooLarge(t *testing.T) {
	w := newFakeWire()
	c := newChannel(w, Options{Timeout: time.Second, MaxFrameSize: 4}, "task-1")
	defer c.Close()

	if err := c.Send(make([]byte, 5)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if a, _ := w.written(); a != 0 {
		t.Fatalf("oversized frame must not be written, wrote %d", a)
	}
}

func TestChannel_ReceiveMessages(t *testing.T) {
	w := newFakeWire()
	c := newChannel(w, Options{Timeout: time.Second}, "task-1")
	defer c.Close()

	w.packets <- []byte(`{"event":"started"}`)
	w.packets <- []byte(`{"event":"partial","text":"hel"}`)
	w.packets <- []byte(`{"event":"final","candidates":[{"text":"hello","confidence":0.9}],"gender":1}`)

	msg, err := c.Receive(context.Background())
	if err != nil || msg.Kind != KindPartial || msg.Text != "hel" {
		t.Fatalf("unexpected first message %+v, %v", msg, err)
	}
	msg, err = c.Receive(context.Background())
	if err != nil || msg.Kind != KindFinal || msg.Gender != 1 || len(msg.Candidates) != 1 {
		t.Fatalf("unexpected final message %+v, %v", msg, err)
	}
}

func TestChannel_ReceiveServerError(t *testing.T) {
	w := newFakeWire()
	c := newChannel(w, Options{Timeout: time.Second}, "task-1")
	defer c.Close()

	w.packets <- []byte(`{"event":"error","code":63,"reason":"session expired"}`)
	_, err := c.Receive(context.Background())
	var serverErr *ServerError
	if !errors.As(err, &serverErr) || serverErr.Code != 63 {
		t.Fatalf("expected ServerError 63, got %v", err)
	}
}

func TestChannel_ReceiveDecodeFailures(t *testing.T) {
	tests := []struct {
		name    string
		packet  string
		unknown bool
	}{
		{"garbage", `{not json`, false},
		{"unknown event", `{"event":"teleport"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newFakeWire()
			c := newChannel(w, Options{Timeout: time.Second}, "task-1")
			defer c.Close()

			w.packets <- []byte(tt.packet)
			_, err := c.Receive(context.Background())
			if op, ok := FailedOp(err); !ok || op != OpDecode {
				t.Fatalf("expected decode failure, got %v", err)
			}
			if errors.Is(err, ErrUnknownEvent) != tt.unknown {
				t.Fatalf("unexpected unknown-event classification for %v", err)
			}
		})
	}
}

func TestChannel_WriteFailure(t *testing.T) {
	w := newFakeWire()
	w.writeErr = errors.New("broken pipe")
	c := newChannel(w, Options{Timeout: time.Second}, "task-1")
	defer c.Close()

	if err := c.Send([]byte{1}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	_, err := c.Receive(context.Background())
	if op, ok := FailedOp(err); !ok || op != OpWrite {
		t.Fatalf("expected write failure, got %v", err)
	}
}

func TestChannel_InactivityTimeout(t *testing.T) {
	w := newFakeWire()
	c := newChannel(w, Options{Timeout: 50 * time.Millisecond}, "task-1")
	defer c.Close()

	start := time.Now()
	_, err := c.Receive(context.Background())
	if !IsTimeout(err) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("timeout fired too early: %v", elapsed)
	}
}

func TestChannel_ExpiredWithoutReceiver(t *testing.T) {
	w := newFakeWire()
	c := newChannel(w, Options{Timeout: 50 * time.Millisecond}, "task-1")
	defer c.Close()

	select {
	case <-c.Expired():
	case <-time.After(time.Second):
		t.Fatal("Expired() was not closed after the inactivity timeout")
	}
	if _, err := c.Receive(context.Background()); !IsTimeout(err) {
		t.Fatalf("expected ErrTimeout after expiry, got %v", err)
	}
}

func TestChannel_ActivityDefersTimeout(t *testing.T) {
	w := newFakeWire()
	c := newChannel(w, Options{Timeout: 80 * time.Millisecond}, "task-1")
	defer c.Close()

	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		if err := c.Send([]byte{1}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline while traffic flows, got %v", err)
	}
}

func TestChannel_CloseIdempotent(t *testing.T) {
	w := newFakeWire()
	c := newChannel(w, Options{Timeout: time.Second}, "task-1")

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if w.closes != 1 {
		t.Fatalf("expected wire closed once, got %d", w.closes)
	}
	if err := c.Send([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := c.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Receive, got %v", err)
	}
}
