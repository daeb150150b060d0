package speech

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liuscraft/orion-speech/internal/audio"
	"github.com/liuscraft/orion-speech/internal/epd"
	"github.com/liuscraft/orion-speech/internal/result"
	"github.com/liuscraft/orion-speech/internal/transport"
)

type mockSource struct {
	frames   chan []byte
	failWith chan error
	closeCh  chan struct{}
	once     sync.Once
	closed   atomic.Bool
}

func newMockSource() *mockSource {
	return &mockSource{
		frames:   make(chan []byte, 64),
		failWith: make(chan error, 1),
		closeCh:  make(chan struct{}),
	}
}

func (s *mockSource) Read(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case err := <-s.failWith:
		return nil, err
	case <-s.closeCh:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *mockSource) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
	})
	return nil
}

type mockOpener struct {
	mu      sync.Mutex
	sources []*mockSource
	err     error
	gate    chan struct{}
}

func (o *mockOpener) Open(ctx context.Context) (audio.Source, error) {
	if o.gate != nil {
		select {
		case <-o.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if o.err != nil {
		return nil, o.err
	}
	src := newMockSource()
	o.mu.Lock()
	o.sources = append(o.sources, src)
	o.mu.Unlock()
	return src, nil
}

func (o *mockOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sources)
}

func (o *mockOpener) last() *mockSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sources) == 0 {
		return nil
	}
	return o.sources[len(o.sources)-1]
}

type inboundMsg struct {
	msg transport.Message
	err error
}

type mockChannel struct {
	maxFrame int

	mu       sync.Mutex
	sent     [][]byte
	finished bool

	inbound    chan inboundMsg
	expiredCh  chan struct{}
	expireOnce sync.Once
	closeCh    chan struct{}
	once       sync.Once
	closed     atomic.Bool
}

func newMockChannel(maxFrame int) *mockChannel {
	return &mockChannel{
		maxFrame: maxFrame,
		inbound:   make(chan inboundMsg, 16),
		expiredCh: make(chan struct{}),
		closeCh:   make(chan struct{}),
	}
}

func (c *mockChannel) Send(frame []byte) error {
	if c.maxFrame > 0 && len(frame) > c.maxFrame {
		return transport.ErrFrameTooLarge
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return transport.ErrFinished
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	c.sent = append(c.sent, buf)
	return nil
}

func (c *mockChannel) Finish() error {
	c.mu.Lock()
	c.finished = true
	c.mu.Unlock()
	return nil
}

func (c *mockChannel) Receive(ctx context.Context) (transport.Message, error) {
	select {
	case in := <-c.inbound:
		return in.msg, in.err
	case <-c.closeCh:
		return transport.Message{}, transport.ErrClosed
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	}
}

func (c *mockChannel) Expired() <-chan struct{} {
	return c.expiredCh
}

// expire fires the inactivity signal.
func (c *mockChannel) expire() {
	c.expireOnce.Do(func() { close(c.expiredCh) })
}

func (c *mockChannel) Close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.closeCh)
	})
	return nil
}

func (c *mockChannel) push(msg transport.Message) {
	c.inbound <- inboundMsg{msg: msg}
}

func (c *mockChannel) fail(err error) {
	c.inbound <- inboundMsg{err: err}
}

func (c *mockChannel) isFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

func (c *mockChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type mockDialer struct {
	maxFrame int
	err      error

	mu         sync.Mutex
	channels   []*mockChannel
	handshakes []transport.Handshake
}

func (d *mockDialer) Dial(ctx context.Context, hs transport.Handshake) (transport.Channel, error) {
	if d.err != nil {
		return nil, &transport.OpError{Op: transport.OpDial, Err: d.err}
	}
	ch := newMockChannel(d.maxFrame)
	d.mu.Lock()
	d.channels = append(d.channels, ch)
	d.handshakes = append(d.handshakes, hs)
	d.mu.Unlock()
	return ch, nil
}

func (d *mockDialer) last() *mockChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

func (d *mockDialer) lastHandshake() transport.Handshake {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handshakes[len(d.handshakes)-1]
}

type event struct {
	name string
	arg  any
}

// recorder implements every listener interface.
type recorder struct {
	mu     sync.Mutex
	events []event

	onReady    func(r *Recognizer)
	onInactive func(r *Recognizer)
}

func (l *recorder) add(name string, arg any) {
	l.mu.Lock()
	l.events = append(l.events, event{name: name, arg: arg})
	l.mu.Unlock()
}

func (l *recorder) DidReceiveResult(r *Recognizer, res result.RecognizedResult) {
	l.add("result", res)
}
func (l *recorder) EnteredReady(r *Recognizer) {
	l.add("ready", nil)
	if l.onReady != nil {
		l.onReady(r)
	}
}
func (l *recorder) DidRecordSpeechData(r *Recognizer, data []byte) {
	l.add("data", len(data))
}
func (l *recorder) DidSelectEndPointDetectType(r *Recognizer, t epd.Type) {
	l.add("epd", t)
}
func (l *recorder) DidReceivePartialResult(r *Recognizer, text string) {
	l.add("partial", text)
}
func (l *recorder) DidDetectEndPoint(r *Recognizer)           { l.add("endpoint", nil) }
func (l *recorder) DidReceiveError(r *Recognizer, err *Error) { l.add("error", err) }
func (l *recorder) EnteredInactive(r *Recognizer) {
	l.add("inactive", nil)
	if l.onInactive != nil {
		l.onInactive(r)
	}
}

func (l *recorder) snapshot() []event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *recorder) count(name string) int {
	n := 0
	for _, e := range l.snapshot() {
		if e.name == name {
			n++
		}
	}
	return n
}

func (l *recorder) first(name string) (event, bool) {
	for _, e := range l.snapshot() {
		if e.name == name {
			return e, true
		}
	}
	return event{}, false
}

// sequence returns event names with runs of "data" collapsed into "data*".
func (l *recorder) sequence() []string {
	var out []string
	for _, e := range l.snapshot() {
		name := e.name
		if name == "data" {
			name = "data*"
			if len(out) > 0 && out[len(out)-1] == name {
				continue
			}
		}
		out = append(out, name)
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig(t epd.Type) Configuration {
	return Configuration{
		ClientID:  "client",
		Version:   "1.0.0",
		Device:    "test-device",
		OSVersion: "linux",
		EPDType:   t,
	}
}

type harness struct {
	r      *Recognizer
	opener *mockOpener
	dialer *mockDialer
	rec    *recorder
	handle *ListenerHandle
}

func newHarness(t *testing.T, cfg Configuration, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		opener: &mockOpener{},
		dialer: &mockDialer{maxFrame: 32000},
		rec:    &recorder{},
	}
	opts := Options{
		Opener:       h.opener,
		Dialer:       h.dialer,
		HybridWindow: 150 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	r, err := NewRecognizer(cfg, opts)
	if err != nil {
		t.Fatalf("NewRecognizer() error = %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	h.r = r
	h.handle = r.SetListener(h.rec)
	return h
}

// startRecording starts a session and waits until capture is running.
func (h *harness) startRecording(t *testing.T) (*mockSource, *mockChannel) {
	t.Helper()
	if err := h.r.Start(LanguageEnglish); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "recording", func() bool { return h.r.State() == StateRecording })
	return h.opener.last(), h.dialer.last()
}

func (h *harness) waitEvent(t *testing.T, name string, n int) {
	t.Helper()
	waitFor(t, name, func() bool { return h.rec.count(name) >= n })
}

// tone returns ms of 16kHz mono PCM with a square wave of the given amplitude.
func tone(ms int, amplitude int16) []byte {
	samples := 16 * ms
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func finalMessage(texts ...string) transport.Message {
	msg := transport.Message{Kind: transport.KindFinal, Gender: int(result.Female)}
	for i, text := range texts {
		msg.Candidates = append(msg.Candidates, transport.Candidate{Text: text, Confidence: 1 - float64(i)*0.1})
	}
	return msg
}
