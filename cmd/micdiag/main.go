package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/liuscraft/orion-speech/internal/audio/source"
	"github.com/liuscraft/orion-speech/internal/epd"
)

const sessionRate = 16000

func main() {
	listen := flag.Duration("listen", 0, "capture from the device for this long and run the auto end point detector")
	device := flag.String("device", "", "input device name for -listen (default device when empty)")
	highLatency := flag.Bool("high-latency", false, "use the device's high input latency for -listen")
	flag.Parse()

	fmt.Println("=== PortAudio Input Diagnostics ===")
	fmt.Println()

	if err := portaudio.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize PortAudio: %v\n", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	if *listen > 0 {
		if err := runListen(*device, *highLatency, *listen); err != nil {
			fmt.Fprintf(os.Stderr, "Listen failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		fmt.Printf("Default Input Device: (error: %v)\n", err)
	} else {
		fmt.Printf("Default Input Device: %s\n", defaultInput.Name)
	}
	fmt.Println()

	devices, err := portaudio.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get devices: %v\n", err)
		os.Exit(1)
	}

	for i, dev := range devices {
		if dev.MaxInputChannels <= 0 {
			continue
		}
		marker := ""
		if defaultInput != nil && dev.Name == defaultInput.Name {
			marker = " [DEFAULT INPUT]"
		}
		fmt.Printf("[%d] %s%s\n", i, dev.Name, marker)
		fmt.Printf("    Max Input Channels:  %d\n", dev.MaxInputChannels)
		fmt.Printf("    Default Sample Rate: %.0f Hz\n", dev.DefaultSampleRate)
		fmt.Printf("    Input Latency:  Low=%.1fms, High=%.1fms\n",
			dev.DefaultLowInputLatency.Seconds()*1000,
			dev.DefaultHighInputLatency.Seconds()*1000)
		fmt.Println()
	}

	if defaultInput != nil && defaultInput.MaxInputChannels > 0 {
		printRecommendation(defaultInput)
	}
}

// printRecommendation 输出默认输入设备对应的 audio 配置段
func printRecommendation(dev *portaudio.DeviceInfo) {
	captureRate := int(dev.DefaultSampleRate)
	if captureRate == 0 {
		captureRate = sessionRate
	}
	highLatency := dev.DefaultHighInputLatency.Seconds()*1000 > 50

	bufferMs := int(dev.DefaultHighInputLatency.Seconds() * 1000 * 3)
	if bufferMs < 100 {
		bufferMs = 100
	}

	fmt.Println("=== Recommended audio section (config/recognizer.yaml) ===")
	fmt.Println()
	fmt.Println("audio:")
	fmt.Printf("  sample_rate: %d\n", sessionRate)
	if captureRate != sessionRate {
		fmt.Printf("  capture_sample_rate: %d\n", captureRate)
	}
	fmt.Println("  channels: 1")
	fmt.Printf("  buffer_size: %d\n", sessionRate*bufferMs/1000)
	fmt.Printf("  input_device: %q\n", dev.Name)
	fmt.Printf("  high_latency: %v\n", highLatency)
	fmt.Println()
	if captureRate != sessionRate {
		fmt.Printf("NOTE: device runs at %d Hz; frames are resampled to %d Hz before recognition.\n", captureRate, sessionRate)
	}
}

func runListen(device string, highLatency bool, d time.Duration) error {
	opener := source.MicrophoneOpener{
		SampleRate:  sessionRate,
		Channels:    1,
		BufferSize:  sessionRate / 10,
		HighLatency: highLatency,
		DeviceName:  device,
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	src, err := opener.Open(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	detector, err := epd.NewAutoDetector(epd.DefaultOptions())
	if err != nil {
		return err
	}

	name := strings.TrimSpace(device)
	if name == "" {
		name = "default"
	}
	fmt.Printf("Probing %s for %s, speak and then stay quiet...\n", name, d)

	frames, bytes, endPoints := 0, 0, 0
	start := time.Now()
	for {
		frame, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		frames++
		bytes += len(frame)
		if detector.Feed(frame) {
			endPoints++
			fmt.Printf("end point detected after %.1fs\n", time.Since(start).Seconds())
			detector.Reset()
		}
	}

	fmt.Printf("read %d frames (%d bytes), end points: %d, speech pending: %v\n",
		frames, bytes, endPoints, detector.SpeechSeen())
	return nil
}
