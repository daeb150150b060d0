package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/liuscraft/orion-speech/internal/audio"
	"github.com/liuscraft/orion-speech/internal/audio/source"
	"github.com/liuscraft/orion-speech/internal/config"
	"github.com/liuscraft/orion-speech/internal/epd"
	"github.com/liuscraft/orion-speech/internal/logging"
	"github.com/liuscraft/orion-speech/internal/result"
	"github.com/liuscraft/orion-speech/internal/speech"
	"github.com/liuscraft/orion-speech/internal/transport"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup always runs.
func run() int {
	configPath := flag.String("config", config.DefaultPath, "config file path (.json/.yaml)")
	epdName := flag.String("epd", "", "end point detection: auto, manual or hybrid (overrides config)")
	langName := flag.String("lang", "", "recognition language, e.g. ko-KR or en (overrides config)")
	filePath := flag.String("file", "", "replay a .wav or raw PCM16 file instead of the microphone")
	realtime := flag.Bool("realtime", true, "pace file playback at capture speed")
	device := flag.String("device", "", "input device name (overrides config)")
	transportKind := flag.String("transport", "", "websocket or nats (overrides config)")
	flag.Parse()

	appConfig, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *epdName != "" {
		appConfig.Recognizer.EPDType = *epdName
	}
	if *langName != "" {
		appConfig.Recognizer.Language = *langName
	}
	if *device != "" {
		appConfig.Audio.InputDevice = *device
	}
	if *transportKind != "" {
		appConfig.Transport.Kind = *transportKind
	}
	if err := appConfig.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}
	if err := appConfig.ValidateKeys(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}

	if err := logging.Init(logging.Config{
		Level:  appConfig.Logging.Level,
		Format: appConfig.Logging.Format,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		return 1
	}
	defer logging.Sync()
	logging.SetTraceID(logging.NewTraceID())

	lang, err := speech.ParseLanguageCode(appConfig.Recognizer.Language)
	if err != nil {
		logging.Errorf("Invalid language: %v", err)
		return 1
	}
	recognizerCfg, err := speech.ConfigurationFrom(appConfig.Recognizer)
	if err != nil {
		logging.Errorf("Invalid recognizer config: %v", err)
		return 1
	}

	format := audio.Format{SampleRate: appConfig.Audio.SampleRate, Channels: appConfig.Audio.Channels}

	var opener audio.Opener
	if *filePath != "" {
		logging.Infof("Replaying %s (realtime=%v)", *filePath, *realtime)
		opener = audio.FileOpener{Path: *filePath, Format: format, Realtime: *realtime}
	} else {
		logging.Infof("Initializing PortAudio...")
		if err := portaudio.Initialize(); err != nil {
			logging.Errorf("Failed to initialize PortAudio: %v", err)
			return 1
		}
		defer portaudio.Terminate()
		opener = microphoneOpener(appConfig.Audio, format)
	}

	timeout := time.Duration(appConfig.Transport.TimeoutMs) * time.Millisecond
	recognizer, err := speech.NewRecognizer(recognizerCfg, speech.Options{
		Opener: opener,
		Dialer: newDialer(appConfig.Transport, transport.Options{
			Timeout:      timeout,
			MaxFrameSize: appConfig.Transport.MaxFrameSize,
		}),
		Format: format,
		EPD: epd.Options{
			SampleRate:      format.SampleRate,
			Channels:        format.Channels,
			Threshold:       appConfig.EPD.Threshold,
			TrailingSilence: time.Duration(appConfig.EPD.TrailingSilenceMs) * time.Millisecond,
			SmoothingFrames: epd.DefaultOptions().SmoothingFrames,
		},
		HybridWindow: time.Duration(appConfig.EPD.HybridWindowMs) * time.Millisecond,
	})
	if err != nil {
		logging.Errorf("Failed to create recognizer: %v", err)
		return 1
	}
	defer func() {
		if err := recognizer.Close(); err != nil {
			logging.Warnf("close recognizer: %v", err)
		}
	}()

	done := make(chan struct{})
	out := &printer{done: done}
	recognizer.SetListener(out)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := recognizer.Start(lang); err != nil {
		logging.Errorf("Failed to start recognizer: %v", err)
		return 1
	}
	logging.Infof("Recognizer started (lang=%s epd=%s transport=%s)", lang, recognizerCfg.EPDType, appConfig.Transport.Kind)
	fmt.Println("listening... press Enter to stop, Ctrl+C to cancel")
	if recognizerCfg.EPDType == epd.Hybrid {
		fmt.Println("hybrid: type 'a' + Enter for auto, 'm' + Enter for manual")
	}

	go readCommands(recognizer)

	select {
	case <-done:
		if out.failed {
			return 1
		}
	case <-ctx.Done():
		if recognizer.Cancel() {
			fmt.Println("cancelled")
		}
	}
	return 0
}

func microphoneOpener(cfg config.AudioConfig, format audio.Format) audio.Opener {
	captureRate := cfg.CaptureSampleRate
	if captureRate <= 0 {
		captureRate = format.SampleRate
	}
	// BufferSize is in samples at the session rate; keep the same duration at the capture rate.
	bufferSize := cfg.BufferSize * captureRate / format.SampleRate
	logging.Infof("Microphone source (rate=%d, bufferSize=%d, highLatency=%v, inputDevice=%q)",
		captureRate, bufferSize, cfg.HighLatency, cfg.InputDevice)

	mic := source.MicrophoneOpener{
		SampleRate:  captureRate,
		Channels:    format.Channels,
		BufferSize:  bufferSize,
		HighLatency: cfg.HighLatency,
		DeviceName:  cfg.InputDevice,
	}
	if captureRate == format.SampleRate {
		return mic
	}
	return audio.ResamplingOpener{
		Opener:     mic,
		InputRate:  captureRate,
		OutputRate: format.SampleRate,
		Channels:   format.Channels,
	}
}

func newDialer(cfg config.TransportConfig, opts transport.Options) transport.Dialer {
	if strings.EqualFold(strings.TrimSpace(cfg.Kind), config.TransportNATS) {
		return &transport.NATSDialer{
			URL:     cfg.NATSURL,
			Subject: cfg.Subject,
			Token:   cfg.APIKey,
			Options: opts,
		}
	}
	return &transport.WebSocketDialer{
		Endpoint: cfg.Endpoint,
		APIKey:   cfg.APIKey,
		Options:  opts,
	}
}

// readCommands maps stdin lines onto recognizer controls.
func readCommands(r *speech.Recognizer) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "":
			if !r.Stop() {
				logging.Debugf("stop ignored in state %s", r.State())
			}
		case "a":
			fmt.Printf("epd auto: %v\n", r.SetEPDType(epd.Auto))
		case "m":
			fmt.Printf("epd manual: %v\n", r.SetEPDType(epd.Manual))
		}
	}
}

// printer echoes callbacks; failed is written before done closes.
type printer struct {
	done   chan struct{}
	failed bool
}

func (p *printer) DidReceiveResult(r *speech.Recognizer, res result.RecognizedResult) {
	fmt.Printf("result (%s):\n", res.Gender())
	for i, text := range res.Results() {
		fmt.Printf("  %d. %s\n", i+1, text)
	}
}

func (p *printer) EnteredReady(r *speech.Recognizer) {
	fmt.Println("ready")
}

func (p *printer) DidSelectEndPointDetectType(r *speech.Recognizer, t epd.Type) {
	fmt.Printf("epd: %s\n", t)
}

func (p *printer) DidReceivePartialResult(r *speech.Recognizer, text string) {
	fmt.Printf("partial: %s\n", text)
}

func (p *printer) DidDetectEndPoint(r *speech.Recognizer) {
	fmt.Println("end point")
}

func (p *printer) DidReceiveError(r *speech.Recognizer, err *speech.Error) {
	p.failed = true
	fmt.Printf("error: %v (category=%s)\n", err, err.Category)
}

func (p *printer) EnteredInactive(r *speech.Recognizer) {
	close(p.done)
}
