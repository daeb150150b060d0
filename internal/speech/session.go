package speech

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/liuscraft/orion-speech/internal/audio"
	"github.com/liuscraft/orion-speech/internal/epd"
	"github.com/liuscraft/orion-speech/internal/logging"
	"github.com/liuscraft/orion-speech/internal/result"
	"github.com/liuscraft/orion-speech/internal/transport"
	"golang.org/x/sync/errgroup"
)

// session is one recognition attempt. Fields below mu-guarded are only
// touched with the Recognizer's mutex held.
type session struct {
	r      *Recognizer
	id     string
	taskID string
	lang   LanguageCode
	cfg    Configuration
	log    *logging.Logger

	ctx       context.Context
	cancelCtx context.CancelFunc
	cancelled atomic.Bool

	// mu-guarded
	sm           *StateMachine
	source       audio.Source
	channel      transport.Channel
	detector     epd.Detector
	selector     *epd.Selector
	selection    epd.Type
	heldPartials []string
	hybridTimer  *time.Timer
	aggregator   *result.Aggregator

	closeSourceOnce sync.Once
	releaseOnce     sync.Once
}

func newSession(r *Recognizer, cfg Configuration, lang LanguageCode) (*session, error) {
	detector, err := epd.New(cfg.EPDType, r.opts.EPD)
	if err != nil {
		return nil, newSDKError(SDKErrorInvalidRecognitionCode, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	s := &session{
		r:          r,
		id:         id,
		taskID:     uuid.NewString(),
		lang:       lang,
		cfg:        cfg,
		log:        logging.WithSession(id),
		ctx:        ctx,
		cancelCtx:  cancel,
		sm:         NewStateMachine(),
		detector:   detector,
		selection:  cfg.EPDType,
		aggregator: result.NewAggregator(),
	}
	if sel, ok := detector.(*epd.Selector); ok {
		s.selector = sel
		s.selection = epd.None
	}
	return s, nil
}

func (s *session) state() State {
	return s.sm.GetCurrentState()
}

func (s *session) handshake() transport.Handshake {
	return transport.Handshake{
		SessionID:        s.id,
		TaskID:           s.taskID,
		ClientID:         s.cfg.ClientID,
		Version:          s.cfg.Version,
		Device:           s.cfg.Device,
		OSVersion:        s.cfg.OSVersion,
		BundleIdentifier: s.cfg.BundleIdentifier,
		Language:         s.lang.String(),
		QuestionDetected: s.cfg.QuestionDetected,
		EPDType:          s.cfg.EPDType.String(),
		SampleRate:       s.r.opts.Format.SampleRate,
		Channels:         s.r.opts.Format.Channels,
	}
}

// run acquires audio and network, enters Recording and then waits for the
// capture and receive goroutines.
func (s *session) run() {
	r := s.r
	src, ch, err := s.acquire()

	r.mu.Lock()
	if s.cancelled.Load() || r.session != s {
		r.mu.Unlock()
		closeQuietly(src, ch)
		return
	}
	if err != nil {
		r.failLocked(s, fromRuntime(err))
		r.mu.Unlock()
		return
	}

	s.source, s.channel = src, ch
	s.sm.Transition(StateReady)
	r.emit(s, func(h *ListenerHandle) { h.enteredReady(r) })
	s.sm.Transition(StateRecording)
	s.log.Infof("recording (task=%s)", s.taskID)

	if s.selector != nil {
		if s.selection != epd.None {
			r.announceSelectionLocked(s)
		} else {
			s.hybridTimer = time.AfterFunc(r.opts.HybridWindow, func() { r.autoResolve(s) })
		}
	}

	g, gctx := errgroup.WithContext(s.ctx)
	g.Go(func() error { return s.capture(gctx) })
	g.Go(func() error { return s.receive(gctx) })
	r.mu.Unlock()

	if err := g.Wait(); err != nil {
		s.log.Debugf("session goroutines stopped: %v", err)
	}
}

func (s *session) acquire() (audio.Source, transport.Channel, error) {
	var (
		src audio.Source
		ch  transport.Channel
	)
	g, ctx := errgroup.WithContext(s.ctx)
	opened := make(chan struct{})
	g.Go(func() error {
		defer close(opened)
		source, err := s.r.opts.Opener.Open(ctx)
		if err != nil {
			return newRecognizerError(RecognizerErrorAudioInitialize, err)
		}
		src = source
		return nil
	})
	g.Go(func() error {
		dialed, err := s.r.opts.Dialer.Dial(ctx, s.handshake())
		if err != nil {
			return newRecognizerError(RecognizerErrorNetworkInitialize, err)
		}
		ch = dialed
		// the watchdog already runs; a stalled audio open must not outlive it
		select {
		case <-opened:
		case <-ctx.Done():
		case <-dialed.Expired():
			s.log.Warnf("transport timed out while audio was opening")
			return newRecognizerError(RecognizerErrorTimeout, transport.ErrTimeout)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		closeQuietly(src, ch)
		return nil, nil, err
	}
	return src, ch, nil
}

func (s *session) capture(ctx context.Context) error {
	for {
		frame, err := s.source.Read(ctx)
		if err != nil {
			return s.r.captureFailed(s, err)
		}
		if len(frame) == 0 {
			continue
		}
		if !s.r.onFrame(s, frame) {
			return nil
		}
	}
}

func (s *session) receive(ctx context.Context) error {
	for {
		msg, err := s.channel.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return s.r.receiveFailed(s, err)
		}
		switch msg.Kind {
		case transport.KindPartial:
			s.r.onPartial(s, msg)
		case transport.KindFinal:
			s.r.onFinal(s, msg)
			return nil
		}
	}
}

func (r *Recognizer) onFrame(s *session, frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != s || s.state() != StateRecording {
		return false
	}

	data := make([]byte, len(frame))
	copy(data, frame)
	r.emit(s, func(h *ListenerHandle) { h.didRecordSpeechData(r, data) })

	if err := s.channel.Send(frame); err != nil {
		if !errors.Is(err, transport.ErrFrameTooLarge) {
			err = &transport.OpError{Op: transport.OpWrite, Err: err}
		}
		r.failLocked(s, fromRuntime(err))
		return false
	}

	if s.detector.Feed(frame) {
		s.log.Infof("end point detected")
		r.endPointLocked(s)
		return false
	}
	return true
}

func (r *Recognizer) captureFailed(s *session, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != s || s.state() != StateRecording {
		return nil
	}
	if errors.Is(err, io.EOF) {
		s.log.Infof("audio source drained")
		r.endPointLocked(s)
		return nil
	}
	e := newRecognizerError(RecognizerErrorAudioRecord, err)
	r.failLocked(s, e)
	return e
}

func (r *Recognizer) receiveFailed(s *session, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != s {
		return nil
	}
	e := fromRuntime(err)
	r.failLocked(s, e)
	return e
}

func (r *Recognizer) onPartial(s *session, msg transport.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != s {
		return
	}
	text := s.aggregator.Partial(msg)
	// partials after the end point only update the aggregator
	if s.state() != StateRecording {
		return
	}
	if s.selector != nil && s.selection == epd.None {
		s.heldPartials = append(s.heldPartials, text)
		return
	}
	r.emit(s, func(h *ListenerHandle) { h.didReceivePartialResult(r, text) })
}

func (r *Recognizer) onFinal(s *session, msg transport.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != s {
		return
	}
	if s.state() == StateRecording {
		r.endPointLocked(s)
	}
	if s.state() != StateFinalizing {
		return
	}

	res, err := s.aggregator.Final(msg)
	if err != nil {
		s.log.Warnf("final message without candidates (last partial %q)", s.aggregator.LastPartial())
		r.failLocked(s, fromRuntime(err))
		return
	}
	s.sm.Transition(StateInactive)
	s.log.Infof("final result: %q (%d candidates)", res.Best(), len(res.Results()))

	r.emit(s, func(h *ListenerHandle) { h.didReceiveResult(r, res) })
	r.emit(s, func(h *ListenerHandle) { h.enteredInactive(r) })
	r.finishLocked(s)
}

func (s *session) stopHybridTimer() {
	if s.hybridTimer != nil {
		s.hybridTimer.Stop()
		s.hybridTimer = nil
	}
}

func (s *session) closeSource() {
	s.closeSourceOnce.Do(func() {
		if s.source == nil {
			return
		}
		if err := s.source.Close(); err != nil {
			s.log.Warnf("close audio source: %v", err)
		}
	})
}

// release tears down the session's resources. Safe to call more than once.
func (s *session) release() {
	s.releaseOnce.Do(func() {
		s.cancelCtx()
		s.closeSource()
		if s.channel != nil {
			if err := s.channel.Close(); err != nil {
				s.log.Debugf("close transport: %v", err)
			}
		}
		s.log.Debugf("session released")
	})
}

func closeQuietly(src audio.Source, ch transport.Channel) {
	if src != nil {
		_ = src.Close()
	}
	if ch != nil {
		_ = ch.Close()
	}
}
