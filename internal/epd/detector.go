package epd

import (
	"fmt"
	"math"
	"time"
)

// Detector 根据音频帧判断说话是否结束。实现不是并发安全的，调用方负责串行化。
type Detector interface {
	// Feed consumes one PCM16LE frame and returns true exactly once, on the
	// frame where the end of speech is declared.
	Feed(frame []byte) bool
	Reset()
}

const analysisWindow = 10 * time.Millisecond

type Options struct {
	SampleRate      int
	Channels        int
	Threshold       float64
	TrailingSilence time.Duration
	// SmoothingFrames is the number of 10ms windows averaged per decision.
	SmoothingFrames int
}

func DefaultOptions() Options {
	return Options{
		SampleRate:      16000,
		Channels:        1,
		Threshold:       0.02,
		TrailingSilence: 800 * time.Millisecond,
		SmoothingFrames: 3,
	}
}

func (o Options) validate() error {
	if o.SampleRate <= 0 || o.Channels <= 0 {
		return fmt.Errorf("invalid audio layout: rate=%d channels=%d", o.SampleRate, o.Channels)
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("threshold must be within [0, 1], got %v", o.Threshold)
	}
	if o.TrailingSilence <= 0 {
		return fmt.Errorf("trailing silence must be positive, got %v", o.TrailingSilence)
	}
	return nil
}

// AutoDetector 基于 RMS 能量的端点检测：先检测到语音，再持续静音 TrailingSilence 后判定结束
type AutoDetector struct {
	opts        Options
	windowBytes int

	pending []byte
	history []float64
	next    int
	filled  int

	speechSeen bool
	silence    time.Duration
	ended      bool
}

func NewAutoDetector(opts Options) (*AutoDetector, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.SmoothingFrames <= 0 {
		opts.SmoothingFrames = 1
	}
	windowBytes := opts.SampleRate * opts.Channels * 2 * int(analysisWindow/time.Millisecond) / 1000
	if windowBytes < 2 {
		windowBytes = 2
	}
	return &AutoDetector{
		opts:        opts,
		windowBytes: windowBytes,
		history:     make([]float64, opts.SmoothingFrames),
	}, nil
}

func (d *AutoDetector) Feed(frame []byte) bool {
	if d.ended {
		return false
	}
	d.pending = append(d.pending, frame...)
	for len(d.pending) >= d.windowBytes {
		window := d.pending[:d.windowBytes]
		d.pending = d.pending[d.windowBytes:]
		if d.observe(rms(window)) {
			d.ended = true
			d.pending = nil
			return true
		}
	}
	return false
}

// Ended reports whether the end of speech has already been declared.
func (d *AutoDetector) Ended() bool {
	return d.ended
}

// SpeechSeen reports whether any window crossed the threshold.
func (d *AutoDetector) SpeechSeen() bool {
	return d.speechSeen
}

func (d *AutoDetector) Reset() {
	d.pending = nil
	for i := range d.history {
		d.history[i] = 0
	}
	d.next = 0
	d.filled = 0
	d.speechSeen = false
	d.silence = 0
	d.ended = false
}

func (d *AutoDetector) observe(level float64) bool {
	d.history[d.next] = level
	d.next = (d.next + 1) % len(d.history)
	if d.filled < len(d.history) {
		d.filled++
	}

	var sum float64
	for i := 0; i < d.filled; i++ {
		sum += d.history[i]
	}
	smoothed := sum / float64(d.filled)

	if smoothed >= d.opts.Threshold {
		d.speechSeen = true
		d.silence = 0
		return false
	}
	if !d.speechSeen {
		return false
	}
	d.silence += analysisWindow
	return d.silence >= d.opts.TrailingSilence
}

// ManualDetector 从不触发，结束由调用方 Stop 决定
type ManualDetector struct{}

func (ManualDetector) Feed([]byte) bool { return false }
func (ManualDetector) Reset()           {}

func rms(pcm []byte) float64 {
	count := len(pcm) / 2
	if count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < count; i++ {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		v := float64(sample) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(count))
}
