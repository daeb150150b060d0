package audio

import (
	"context"
	"fmt"
)

// Resampler 采样率转换器
type Resampler interface {
	// Resample converts interleaved int16 samples from inputRate to outputRate.
	Resample(input []int16, inputRate, outputRate, channels int) ([]int16, error)
}

// ResamplingSource 包装 Source，将设备采样率的帧转换为会话采样率
type ResamplingSource struct {
	source     Source
	resampler  Resampler
	inputRate  int
	outputRate int
	channels   int
}

// NewResamplingSource wraps source. When the rates match frames pass through untouched.
func NewResamplingSource(source Source, inputRate, outputRate, channels int, resampler Resampler) (*ResamplingSource, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: input=%d, output=%d", inputRate, outputRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channels: %d", channels)
	}
	if resampler == nil {
		resampler = NewLinearResampler()
	}
	return &ResamplingSource{
		source:     source,
		resampler:  resampler,
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
	}, nil
}

func (s *ResamplingSource) Read(ctx context.Context) ([]byte, error) {
	frame, err := s.source.Read(ctx)
	if err != nil || len(frame) == 0 || s.inputRate == s.outputRate {
		return frame, err
	}
	out, err := s.resampler.Resample(BytesToInt16(frame), s.inputRate, s.outputRate, s.channels)
	if err != nil {
		return nil, err
	}
	return Int16ToBytes(out), nil
}

func (s *ResamplingSource) Close() error {
	return s.source.Close()
}

// ResamplingOpener opens the wrapped Opener and resamples every Source it returns.
type ResamplingOpener struct {
	Opener     Opener
	InputRate  int
	OutputRate int
	Channels   int
}

func (o ResamplingOpener) Open(ctx context.Context) (Source, error) {
	src, err := o.Opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	if o.InputRate == o.OutputRate {
		return src, nil
	}
	rs, err := NewResamplingSource(src, o.InputRate, o.OutputRate, o.Channels, nil)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return rs, nil
}
