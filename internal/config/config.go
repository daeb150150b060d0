package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/recognizer.json"

const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

type AppConfig struct {
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Recognizer RecognizerConfig `json:"recognizer" yaml:"recognizer"`
	Transport  TransportConfig  `json:"transport" yaml:"transport"`
	Audio      AudioConfig      `json:"audio" yaml:"audio"`
	EPD        EPDConfig        `json:"epd" yaml:"epd"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type RecognizerConfig struct {
	ClientID         string `json:"client_id" yaml:"client_id"`
	Version          string `json:"version" yaml:"version"`
	Device           string `json:"device" yaml:"device"`
	OSVersion        string `json:"os_version" yaml:"os_version"`
	BundleIdentifier string `json:"bundle_identifier" yaml:"bundle_identifier"`
	QuestionDetected bool   `json:"question_detected" yaml:"question_detected"`
	EPDType          string `json:"epd_type" yaml:"epd_type"`
	Language         string `json:"language" yaml:"language"`
}

type TransportConfig struct {
	Kind         string `json:"kind" yaml:"kind"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	APIKey       string `json:"api_key" yaml:"api_key"`
	NATSURL      string `json:"nats_url" yaml:"nats_url"`
	Subject      string `json:"subject" yaml:"subject"`
	TimeoutMs    int    `json:"timeout_ms" yaml:"timeout_ms"`
	MaxFrameSize int    `json:"max_frame_size" yaml:"max_frame_size"`
}

type AudioConfig struct {
	SampleRate        int    `json:"sample_rate" yaml:"sample_rate"`
	CaptureSampleRate int    `json:"capture_sample_rate" yaml:"capture_sample_rate"`
	Channels          int    `json:"channels" yaml:"channels"`
	BufferSize        int    `json:"buffer_size" yaml:"buffer_size"`
	InputDevice       string `json:"input_device" yaml:"input_device"`
	HighLatency       bool   `json:"high_latency" yaml:"high_latency"`
}

type EPDConfig struct {
	Threshold         float64 `json:"threshold" yaml:"threshold"`
	TrailingSilenceMs int     `json:"trailing_silence_ms" yaml:"trailing_silence_ms"`
	HybridWindowMs    int     `json:"hybrid_window_ms" yaml:"hybrid_window_ms"`
}

func DefaultConfig() *AppConfig {
	return &AppConfig{
		Logging: LoggingConfig{},
		Recognizer: RecognizerConfig{
			Version:   "1.0.0",
			Device:    "desktop",
			OSVersion: "linux",
			EPDType:   "auto",
			Language:  "ko-KR",
		},
		Transport: TransportConfig{
			Kind:         TransportWebSocket,
			Subject:      "speech",
			TimeoutMs:    10000,
			MaxFrameSize: 32000,
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			BufferSize: 1600,
		},
		EPD: EPDConfig{
			Threshold:         0.02,
			TrailingSilenceMs: 800,
			HybridWindowMs:    600,
		},
	}
}

// Load builds the config from defaults, the optional file, an optional .env
// next to the working directory and finally the process environment.
func Load(path string) (*AppConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func decode(path string, data []byte, cfg *AppConfig) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func (c *AppConfig) ApplyEnv() {
	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		c.Logging.Level = level
	}
	if format := strings.TrimSpace(os.Getenv("LOG_FORMAT")); format != "" {
		c.Logging.Format = format
	}
	if clientID := strings.TrimSpace(os.Getenv("SPEECH_CLIENT_ID")); clientID != "" {
		c.Recognizer.ClientID = clientID
	}
	if endpoint := strings.TrimSpace(os.Getenv("SPEECH_ENDPOINT")); endpoint != "" {
		c.Transport.Endpoint = endpoint
	}
	if key := strings.TrimSpace(os.Getenv("SPEECH_API_KEY")); key != "" {
		c.Transport.APIKey = key
	}
	if kind := strings.TrimSpace(os.Getenv("SPEECH_TRANSPORT")); kind != "" {
		c.Transport.Kind = kind
	}
	if natsURL := strings.TrimSpace(os.Getenv("NATS_URL")); natsURL != "" {
		c.Transport.NATSURL = natsURL
	}
}

func (c *AppConfig) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if c.Audio.CaptureSampleRate < 0 {
		return errors.New("audio.capture_sample_rate must be non-negative")
	}
	if c.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if c.Audio.BufferSize <= 0 {
		return errors.New("audio.buffer_size must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(c.Transport.Kind)) {
	case TransportWebSocket, TransportNATS:
	default:
		return fmt.Errorf("invalid transport kind: %s", c.Transport.Kind)
	}
	if c.Transport.TimeoutMs <= 0 {
		return errors.New("transport.timeout_ms must be positive")
	}
	if c.Transport.MaxFrameSize <= 0 {
		return errors.New("transport.max_frame_size must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(c.Recognizer.EPDType)) {
	case "auto", "manual", "hybrid":
	default:
		return fmt.Errorf("invalid recognizer.epd_type: %s", c.Recognizer.EPDType)
	}

	if c.EPD.Threshold < 0 || c.EPD.Threshold > 1 {
		return errors.New("epd.threshold must be within [0, 1]")
	}
	if c.EPD.TrailingSilenceMs < 0 {
		return errors.New("epd.trailing_silence_ms must be non-negative")
	}
	if c.EPD.HybridWindowMs < 0 {
		return errors.New("epd.hybrid_window_ms must be non-negative")
	}

	return nil
}

// ValidateKeys checks the values a live session cannot start without.
func (c *AppConfig) ValidateKeys() error {
	if strings.TrimSpace(c.Recognizer.ClientID) == "" {
		return errors.New("recognizer client_id is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Transport.Kind)) {
	case TransportNATS:
		if strings.TrimSpace(c.Transport.NATSURL) == "" {
			return errors.New("transport nats_url is required")
		}
	default:
		if strings.TrimSpace(c.Transport.Endpoint) == "" {
			return errors.New("transport endpoint is required")
		}
	}
	return nil
}
