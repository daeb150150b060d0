package audio

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

var errNotWAV = errors.New("not a RIFF/WAVE stream")

// ReaderSource 从 io.Reader 读取 PCM16LE 数据并按帧输出，可选按实时速率节流
type ReaderSource struct {
	reader     io.Reader
	closer     io.Closer
	frameBytes int
	interval   time.Duration
	lastFrame  time.Time

	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewReaderSource splits r into frames of frameMs. When realtime is set each
// Read waits until the previous frame's duration has elapsed.
func NewReaderSource(r io.Reader, format Format, frameMs int, realtime bool) (*ReaderSource, error) {
	frameBytes := FrameBytes(format.SampleRate, format.Channels, frameMs)
	if frameBytes <= 0 {
		return nil, fmt.Errorf("invalid frame layout: rate=%d channels=%d frame_ms=%d", format.SampleRate, format.Channels, frameMs)
	}
	src := &ReaderSource{
		reader:     r,
		frameBytes: frameBytes,
		closeCh:    make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		src.closer = c
	}
	if realtime {
		src.interval = time.Duration(frameMs) * time.Millisecond
	}
	return src, nil
}

func (s *ReaderSource) Read(ctx context.Context) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.interval > 0 && !s.lastFrame.IsZero() {
		wait := time.Until(s.lastFrame.Add(s.interval))
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-s.closeCh:
				timer.Stop()
				return nil, io.EOF
			case <-timer.C:
			}
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closeCh:
		return nil, io.EOF
	default:
	}

	buf := make([]byte, s.frameBytes)
	n, err := io.ReadFull(s.reader, buf)
	if n > 0 {
		s.lastFrame = time.Now()
		return buf[:n-n%2], nil
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return nil, err
}

func (s *ReaderSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

// FileOpener 回放录音文件（.wav 或裸 PCM16LE），每个会话重新打开文件
type FileOpener struct {
	Path     string
	Format   Format
	FrameMs  int
	Realtime bool
}

func (o FileOpener) Open(ctx context.Context) (Source, error) {
	f, err := os.Open(o.Path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}

	format := o.Format
	if format.SampleRate == 0 {
		format = DefaultFormat()
	}
	frameMs := o.FrameMs
	if frameMs <= 0 {
		frameMs = 100
	}

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(strings.ToLower(o.Path), ".wav") {
		wavFormat, data, err := ParseWAVHeader(r)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		format, r = wavFormat, data
	}

	src, err := NewReaderSource(readCloser{Reader: r, Closer: f}, format, frameMs, o.Realtime)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return src, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// ParseWAVHeader reads RIFF chunks until the data chunk and returns the PCM
// format together with a reader positioned at the first sample.
func ParseWAVHeader(r io.Reader) (Format, io.Reader, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Format{}, nil, fmt.Errorf("read wav header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Format{}, nil, errNotWAV
	}

	var format Format
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return Format{}, nil, fmt.Errorf("read wav chunk: %w", err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Format{}, nil, fmt.Errorf("read wav fmt: %w", err)
			}
			if len(body) < 16 {
				return Format{}, nil, errors.New("wav fmt chunk too short")
			}
			if audioFormat := binary.LittleEndian.Uint16(body[0:2]); audioFormat != 1 {
				return Format{}, nil, fmt.Errorf("unsupported wav encoding %d", audioFormat)
			}
			if bits := binary.LittleEndian.Uint16(body[14:16]); bits != 16 {
				return Format{}, nil, fmt.Errorf("unsupported wav bit depth %d", bits)
			}
			format.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
		case "data":
			if format.SampleRate == 0 {
				return Format{}, nil, errors.New("wav data chunk before fmt chunk")
			}
			return format, io.LimitReader(r, size), nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return Format{}, nil, fmt.Errorf("skip wav chunk %q: %w", id, err)
			}
		}
		if size%2 == 1 && id == "fmt " {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return Format{}, nil, err
			}
		}
	}
}

// WriteWAV writes pcm as a 16-bit PCM RIFF/WAVE stream.
func WriteWAV(w io.Writer, format Format, pcm []byte) error {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return fmt.Errorf("invalid wav format %+v", format)
	}
	blockAlign := format.Channels * 2
	fields := []any{
		[]byte("RIFF"),
		uint32(36 + len(pcm)),
		[]byte("WAVE"),
		[]byte("fmt "),
		uint32(16),
		uint16(1),
		uint16(format.Channels),
		uint32(format.SampleRate),
		uint32(format.SampleRate * blockAlign),
		uint16(blockAlign),
		uint16(16),
		[]byte("data"),
		uint32(len(pcm)),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("write wav header: %w", err)
		}
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}
