package source

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/liuscraft/orion-speech/internal/audio"
	"github.com/liuscraft/orion-speech/internal/logging"
)

// MicrophoneSource 麦克风音频源
type MicrophoneSource struct {
	stream     audioStream
	sampleRate int
	channels   int
	bufferSize int
	buffer     []int16
	closeCh    chan struct{}
	closeOnce  sync.Once
	closeErr   error

	startOnce sync.Once
	startErr  error

	totalReads   int64
	blockedReads int64
	mu           sync.Mutex
}

type audioStream interface {
	Start() error
	Read() error
	Abort() error
	Stop() error
	Close() error
}

// MicrophoneOpener opens a new capture stream for every session.
// PortAudio must already be initialized by the host.
type MicrophoneOpener struct {
	SampleRate  int
	Channels    int
	BufferSize  int
	HighLatency bool
	DeviceName  string
}

func (o MicrophoneOpener) Open(ctx context.Context) (audio.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mic, err := NewMicrophoneSource(o.SampleRate, o.Channels, o.BufferSize, o.HighLatency, o.DeviceName)
	if err != nil {
		return nil, err
	}
	if err := mic.Start(); err != nil {
		_ = mic.Close()
		return nil, err
	}
	return mic, nil
}

// NewMicrophoneSource 创建麦克风音频源
// highLatency 使用设备默认的高延迟设置（蓝牙设备更稳定）
// deviceName 按名称部分匹配输入设备，空字符串使用默认设备
// The stream is not started here; Start or the first Read starts it.
func NewMicrophoneSource(sampleRate, channels, bufferSize int, highLatency bool, deviceName string) (*MicrophoneSource, error) {
	if sampleRate <= 0 || channels <= 0 || bufferSize <= 0 {
		return nil, fmt.Errorf("invalid microphone layout: rate=%d channels=%d buffer=%d", sampleRate, channels, bufferSize)
	}

	buffer := make([]int16, bufferSize*channels)

	var inputDevice *portaudio.DeviceInfo
	var err error
	if deviceName != "" {
		inputDevice, err = findInputDeviceByName(deviceName)
		if err != nil {
			logging.Warnf("MicrophoneSource: device %q not found, falling back to default: %v", deviceName, err)
			inputDevice = nil
		}
	}
	if inputDevice == nil {
		inputDevice, err = portaudio.DefaultInputDevice()
		if err != nil {
			logging.Warnf("MicrophoneSource: no default input device (%v), opening default stream", err)
			return openDefault(sampleRate, channels, bufferSize, buffer)
		}
	}

	latency := inputDevice.DefaultLowInputLatency
	latencyMode := "low"
	if highLatency {
		latency = inputDevice.DefaultHighInputLatency
		latencyMode = "high"
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inputDevice,
			Channels: channels,
			Latency:  latency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: bufferSize,
	}
	stream, err := portaudio.OpenStream(params, &buffer)
	if err != nil {
		logging.Warnf("MicrophoneSource: open %s failed (%v), opening default stream", inputDevice.Name, err)
		return openDefault(sampleRate, channels, bufferSize, buffer)
	}

	logging.Infof("MicrophoneSource: device=%s rate=%d channels=%d buffer=%d latency=%s(%.1fms)",
		inputDevice.Name, sampleRate, channels, bufferSize, latencyMode, latency.Seconds()*1000)
	return newMicrophoneSourceWithStream(stream, sampleRate, channels, bufferSize, buffer), nil
}

func openDefault(sampleRate, channels, bufferSize int, buffer []int16) (*MicrophoneSource, error) {
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), bufferSize, &buffer)
	if err != nil {
		return nil, fmt.Errorf("open default input stream: %w", err)
	}
	return newMicrophoneSourceWithStream(stream, sampleRate, channels, bufferSize, buffer), nil
}

func findInputDeviceByName(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	nameLower := strings.ToLower(name)
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 && strings.Contains(strings.ToLower(dev.Name), nameLower) {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("no input device found matching %q", name)
}

func newMicrophoneSourceWithStream(stream audioStream, sampleRate, channels, bufferSize int, buffer []int16) *MicrophoneSource {
	return &MicrophoneSource{
		stream:     stream,
		sampleRate: sampleRate,
		channels:   channels,
		bufferSize: bufferSize,
		buffer:     buffer,
		closeCh:    make(chan struct{}),
	}
}

func (m *MicrophoneSource) Start() error {
	m.startOnce.Do(func() {
		if err := m.stream.Start(); err != nil {
			m.startErr = fmt.Errorf("start input stream: %w", err)
		}
	})
	return m.startErr
}

// Read 读取一帧音频，ctx 取消或 Close 会中止阻塞中的读取
func (m *MicrophoneSource) Read(ctx context.Context) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := m.Start(); err != nil {
		return nil, err
	}

	readStart := time.Now()
	readErr := make(chan error, 1)
	go func() {
		readErr <- m.stream.Read()
	}()

	select {
	case <-ctx.Done():
		m.abortStream("context canceled")
		return nil, ctx.Err()
	case <-m.closeCh:
		m.abortStream("source closed")
		return nil, io.EOF
	case err := <-readErr:
		m.recordRead(time.Since(readStart))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			select {
			case <-m.closeCh:
				return nil, io.EOF
			default:
			}
			return nil, err
		}
	}

	data := make([]byte, len(m.buffer)*2)
	for i, v := range m.buffer {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	return data, nil
}

// Close stops and releases the stream; repeated calls return the first result.
func (m *MicrophoneSource) Close() error {
	m.closeOnce.Do(func() {
		close(m.closeCh)
		if err := m.stream.Stop(); err != nil {
			logging.Warnf("MicrophoneSource: stop stream: %v", err)
		}
		m.closeErr = m.stream.Close()
	})
	return m.closeErr
}

func (m *MicrophoneSource) abortStream(reason string) {
	if err := m.stream.Abort(); err != nil {
		logging.Errorf("MicrophoneSource: abort stream (%s): %v", reason, err)
	}
}

func (m *MicrophoneSource) recordRead(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalReads++
	expected := time.Duration(float64(m.bufferSize) / float64(m.sampleRate) * float64(time.Second))
	if d > expected*3 {
		m.blockedReads++
		logging.Warnf("MicrophoneSource: read blocked for %v (expected ~%v), blocked %d/%d",
			d, expected, m.blockedReads, m.totalReads)
	}
}
