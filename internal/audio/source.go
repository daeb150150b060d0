package audio

import "context"

// Source 音频输入源，每次 Read 返回一帧 PCM16LE 数据
type Source interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Opener acquires a fresh Source for one recognition session.
type Opener interface {
	Open(ctx context.Context) (Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Source, error)

func (f OpenerFunc) Open(ctx context.Context) (Source, error) {
	return f(ctx)
}

// Format describes the PCM layout a Source produces.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat 16kHz 单声道
func DefaultFormat() Format {
	return Format{SampleRate: 16000, Channels: 1}
}

// FrameBytes returns the byte size of frameMs of PCM16 audio.
func FrameBytes(sampleRate, channels, frameMs int) int {
	if sampleRate <= 0 || channels <= 0 || frameMs <= 0 {
		return 0
	}
	return sampleRate * channels * 2 * frameMs / 1000
}
