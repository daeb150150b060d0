package speech

import (
	"fmt"
	"strings"
	"time"

	"github.com/liuscraft/orion-speech/internal/audio"
	"github.com/liuscraft/orion-speech/internal/config"
	"github.com/liuscraft/orion-speech/internal/epd"
	"github.com/liuscraft/orion-speech/internal/transport"
)

type LanguageCode int

const (
	LanguageNone              LanguageCode = -1
	LanguageKorean            LanguageCode = 0
	LanguageJapanese          LanguageCode = 1
	LanguageEnglish           LanguageCode = 2
	LanguageSimplifiedChinese LanguageCode = 3
)

var languageTags = map[LanguageCode]string{
	LanguageKorean:            "ko-KR",
	LanguageJapanese:          "ja-JP",
	LanguageEnglish:           "en-US",
	LanguageSimplifiedChinese: "zh-CN",
}

func (l LanguageCode) String() string {
	if tag, ok := languageTags[l]; ok {
		return tag
	}
	return "none"
}

func (l LanguageCode) Valid() bool {
	_, ok := languageTags[l]
	return ok
}

// ParseLanguageCode accepts BCP-47 tags ("en-US") and bare language
// subtags ("en").
func ParseLanguageCode(s string) (LanguageCode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for code, tag := range languageTags {
		lower := strings.ToLower(tag)
		if s == lower || s == lower[:2] {
			return code, nil
		}
	}
	return LanguageNone, fmt.Errorf("unsupported language %q", s)
}

const (
	maxVersionLength          = 32
	maxBundleIdentifierLength = 256
)

// Configuration 会话身份与检测参数，Start 时按值快照
type Configuration struct {
	ClientID         string
	Version          string
	Device           string
	OSVersion        string
	BundleIdentifier string
	QuestionDetected bool
	EPDType          epd.Type
}

// Validate returns the first SDK error the configuration violates.
func (c Configuration) Validate() error {
	switch {
	case strings.TrimSpace(c.ClientID) == "":
		return newSDKError(SDKErrorInvalidClientID, nil)
	case strings.TrimSpace(c.Version) == "":
		return newSDKError(SDKErrorInvalidVersion, nil)
	case len(c.Version) > maxVersionLength:
		return newSDKError(SDKErrorVersionTooLong, fmt.Errorf("version has %d bytes, max %d", len(c.Version), maxVersionLength))
	case strings.TrimSpace(c.Device) == "":
		return newSDKError(SDKErrorInvalidDevice, nil)
	case strings.TrimSpace(c.OSVersion) == "":
		return newSDKError(SDKErrorInvalidOS, nil)
	case len(c.BundleIdentifier) > maxBundleIdentifierLength:
		return newSDKError(SDKErrorBundleIdentifierTooLong, fmt.Errorf("bundle identifier has %d bytes, max %d", len(c.BundleIdentifier), maxBundleIdentifierLength))
	case !c.EPDType.Valid():
		return newSDKError(SDKErrorInvalidRecognitionCode, fmt.Errorf("epd type %s", c.EPDType))
	}
	return nil
}

// ConfigurationFrom builds a Configuration from the recognizer config section.
func ConfigurationFrom(rc config.RecognizerConfig) (Configuration, error) {
	t, err := epd.ParseType(rc.EPDType)
	if err != nil {
		return Configuration{}, newSDKError(SDKErrorInvalidRecognitionCode, err)
	}
	return Configuration{
		ClientID:         rc.ClientID,
		Version:          rc.Version,
		Device:           rc.Device,
		OSVersion:        rc.OSVersion,
		BundleIdentifier: rc.BundleIdentifier,
		QuestionDetected: rc.QuestionDetected,
		EPDType:          t,
	}, nil
}

// Options wires the collaborators a Recognizer drives.
type Options struct {
	Opener audio.Opener
	Dialer transport.Dialer
	Format audio.Format
	EPD    epd.Options
	// HybridWindow is how long an unresolved Hybrid session waits in
	// Recording before falling back to Auto.
	HybridWindow time.Duration
}

const defaultHybridWindow = 600 * time.Millisecond

func (o Options) withDefaults() Options {
	if o.Format.SampleRate <= 0 || o.Format.Channels <= 0 {
		o.Format = audio.DefaultFormat()
	}
	if o.EPD.SampleRate <= 0 {
		def := epd.DefaultOptions()
		def.SampleRate = o.Format.SampleRate
		def.Channels = o.Format.Channels
		if o.EPD.Threshold > 0 {
			def.Threshold = o.EPD.Threshold
		}
		if o.EPD.TrailingSilence > 0 {
			def.TrailingSilence = o.EPD.TrailingSilence
		}
		if o.EPD.SmoothingFrames > 0 {
			def.SmoothingFrames = o.EPD.SmoothingFrames
		}
		o.EPD = def
	}
	if o.HybridWindow <= 0 {
		o.HybridWindow = defaultHybridWindow
	}
	return o
}
