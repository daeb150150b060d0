package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/liuscraft/orion-speech/internal/audio"
)

// 生成 "静音 - 正弦音 - 静音" 的测试录音，可配合 recognize -file 验证 Auto EPD
func main() {
	output := flag.String("o", "tone.wav", "output .wav file")
	freq := flag.Float64("freq", 440, "tone frequency in Hz")
	sampleRate := flag.Int("rate", 16000, "sample rate in Hz")
	lead := flag.Float64("lead", 0.3, "leading silence in seconds")
	duration := flag.Float64("duration", 1.5, "tone duration in seconds")
	trail := flag.Float64("trail", 1.2, "trailing silence in seconds")
	flag.Parse()

	if *sampleRate <= 0 || *duration <= 0 {
		fmt.Fprintln(os.Stderr, "rate and duration must be positive")
		os.Exit(2)
	}

	samples := make([]int16, 0, int(float64(*sampleRate)*(*lead+*duration+*trail)))
	samples = appendSilence(samples, *sampleRate, *lead)
	toneSamples := int(*duration * float64(*sampleRate))
	for i := 0; i < toneSamples; i++ {
		t := float64(i) / float64(*sampleRate)
		samples = append(samples, int16(32767*0.5*math.Sin(2*math.Pi*(*freq)*t)))
	}
	samples = appendSilence(samples, *sampleRate, *trail)

	if err := writeFile(*output, audio.Format{SampleRate: *sampleRate, Channels: 1}, audio.Int16ToBytes(samples)); err != nil {
		fmt.Fprintf(os.Stderr, "生成失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d Hz mono, %.2fs)\n", *output, *sampleRate, float64(len(samples))/float64(*sampleRate))
}

func appendSilence(samples []int16, sampleRate int, seconds float64) []int16 {
	n := int(seconds * float64(sampleRate))
	return append(samples, make([]int16, n)...)
}

func writeFile(path string, format audio.Format, pcm []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := audio.WriteWAV(w, format, pcm); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
