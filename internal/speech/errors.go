package speech

import (
	"errors"
	"fmt"

	"github.com/liuscraft/orion-speech/internal/result"
	"github.com/liuscraft/orion-speech/internal/transport"
)

// Domain 错误所属的编码体系
type Domain int

const (
	DomainRecognizer Domain = iota
	DomainSDK
)

func (d Domain) String() string {
	if d == DomainSDK {
		return "sdk"
	}
	return "recognizer"
}

type Category string

const (
	CategoryNetwork  Category = "network"
	CategoryAudio    Category = "audio"
	CategorySecurity Category = "security"
	CategoryResult   Category = "result"
	CategoryTimeout  Category = "timeout"
	CategoryClient   Category = "client"
	CategoryEvent    Category = "event"
	CategoryProtocol Category = "protocol"
	CategorySession  Category = "session"
	CategoryService  Category = "service"
	CategoryAuth     Category = "auth"
	CategoryQuota    Category = "quota"
	CategorySetup    Category = "setup"
)

// RecognizerErrorCode 会话运行期错误码
type RecognizerErrorCode int

const (
	RecognizerErrorNetworkInitialize  RecognizerErrorCode = 10
	RecognizerErrorNetworkFinalize    RecognizerErrorCode = 11
	RecognizerErrorNetworkRead        RecognizerErrorCode = 12
	RecognizerErrorNetworkWrite       RecognizerErrorCode = 13
	RecognizerErrorNetworkNACK        RecognizerErrorCode = 14
	RecognizerErrorPacket             RecognizerErrorCode = 15
	RecognizerErrorAudioInitialize    RecognizerErrorCode = 20
	RecognizerErrorAudioFinalize      RecognizerErrorCode = 21
	RecognizerErrorAudioRecord        RecognizerErrorCode = 22
	RecognizerErrorSecurity           RecognizerErrorCode = 30
	RecognizerErrorNoResult           RecognizerErrorCode = 40
	RecognizerErrorTimeout            RecognizerErrorCode = 41
	RecognizerErrorNULLClient         RecognizerErrorCode = 42
	RecognizerErrorUnknownEvent       RecognizerErrorCode = 50
	RecognizerErrorVersion            RecognizerErrorCode = 60
	RecognizerErrorClientInfo         RecognizerErrorCode = 61
	RecognizerErrorServerPool         RecognizerErrorCode = 62
	RecognizerErrorSessionExpired     RecognizerErrorCode = 63
	RecognizerErrorSpeechSizeExceeded RecognizerErrorCode = 64
	RecognizerErrorExceedTimeLimit    RecognizerErrorCode = 65
	RecognizerErrorWrongServiceCode   RecognizerErrorCode = 66
	RecognizerErrorWrongLanguageCode  RecognizerErrorCode = 67
	RecognizerErrorOpenAPIAuth        RecognizerErrorCode = 70
	RecognizerErrorQuotaOverflow      RecognizerErrorCode = 71
)

var recognizerErrorNames = map[RecognizerErrorCode]string{
	RecognizerErrorNetworkInitialize:  "network initialize",
	RecognizerErrorNetworkFinalize:    "network finalize",
	RecognizerErrorNetworkRead:        "network read",
	RecognizerErrorNetworkWrite:       "network write",
	RecognizerErrorNetworkNACK:        "network nack",
	RecognizerErrorPacket:             "packet",
	RecognizerErrorAudioInitialize:    "audio initialize",
	RecognizerErrorAudioFinalize:      "audio finalize",
	RecognizerErrorAudioRecord:        "audio record",
	RecognizerErrorSecurity:           "security",
	RecognizerErrorNoResult:           "no result",
	RecognizerErrorTimeout:            "timeout",
	RecognizerErrorNULLClient:         "null client",
	RecognizerErrorUnknownEvent:       "unknown event",
	RecognizerErrorVersion:            "version",
	RecognizerErrorClientInfo:         "client info",
	RecognizerErrorServerPool:         "server pool",
	RecognizerErrorSessionExpired:     "session expired",
	RecognizerErrorSpeechSizeExceeded: "speech size exceeded",
	RecognizerErrorExceedTimeLimit:    "exceed time limit",
	RecognizerErrorWrongServiceCode:   "wrong service code",
	RecognizerErrorWrongLanguageCode:  "wrong language code",
	RecognizerErrorOpenAPIAuth:        "open api auth",
	RecognizerErrorQuotaOverflow:      "quota overflow",
}

func (c RecognizerErrorCode) String() string {
	if name, ok := recognizerErrorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("recognizer error %d", int(c))
}

func (c RecognizerErrorCode) Category() Category {
	switch {
	case c >= 10 && c <= 15:
		return CategoryNetwork
	case c >= 20 && c <= 22:
		return CategoryAudio
	case c == RecognizerErrorSecurity:
		return CategorySecurity
	case c == RecognizerErrorNoResult:
		return CategoryResult
	case c == RecognizerErrorTimeout:
		return CategoryTimeout
	case c == RecognizerErrorNULLClient:
		return CategoryClient
	case c == RecognizerErrorUnknownEvent:
		return CategoryEvent
	case c >= 60 && c <= 62:
		return CategoryProtocol
	case c >= 63 && c <= 65:
		return CategorySession
	case c == 66 || c == 67:
		return CategoryService
	case c == RecognizerErrorOpenAPIAuth:
		return CategoryAuth
	case c == RecognizerErrorQuotaOverflow:
		return CategoryQuota
	default:
		return CategoryEvent
	}
}

// SDKErrorCode Start 同步返回的配置错误码
type SDKErrorCode int

const (
	SDKErrorNone                    SDKErrorCode = 0
	SDKErrorInvalidClientID         SDKErrorCode = 10
	SDKErrorInvalidVersion          SDKErrorCode = 11
	SDKErrorInvalidDevice           SDKErrorCode = 12
	SDKErrorInvalidOS               SDKErrorCode = 13
	SDKErrorInvalidServiceCode      SDKErrorCode = 14
	SDKErrorInvalidLanguageCode     SDKErrorCode = 15
	SDKErrorVersionTooLong          SDKErrorCode = 16
	SDKErrorBundleIdentifierTooLong SDKErrorCode = 17
	SDKErrorInvalidRecognitionCode  SDKErrorCode = 18
	SDKErrorAlreadyRunning          SDKErrorCode = 20
)

var sdkErrorNames = map[SDKErrorCode]string{
	SDKErrorNone:                    "none",
	SDKErrorInvalidClientID:         "invalid client id",
	SDKErrorInvalidVersion:          "invalid version",
	SDKErrorInvalidDevice:           "invalid device",
	SDKErrorInvalidOS:               "invalid os",
	SDKErrorInvalidServiceCode:      "invalid service code",
	SDKErrorInvalidLanguageCode:     "invalid language code",
	SDKErrorVersionTooLong:          "version too long",
	SDKErrorBundleIdentifierTooLong: "bundle identifier too long",
	SDKErrorInvalidRecognitionCode:  "invalid recognition code",
	SDKErrorAlreadyRunning:          "already running",
}

func (c SDKErrorCode) String() string {
	if name, ok := sdkErrorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("sdk error %d", int(c))
}

// Error is a coded failure from either taxonomy. Two errors match under
// errors.Is when domain and code are equal.
type Error struct {
	Domain   Domain
	Code     int
	Category Category
	Err      error
}

func (e *Error) Error() string {
	var name string
	if e.Domain == DomainSDK {
		name = SDKErrorCode(e.Code).String()
	} else {
		name = RecognizerErrorCode(e.Code).String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error %d (%s): %v", e.Domain, e.Code, name, e.Err)
	}
	return fmt.Sprintf("%s error %d (%s)", e.Domain, e.Code, name)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Domain == e.Domain && t.Code == e.Code
}

func newRecognizerError(code RecognizerErrorCode, err error) *Error {
	return &Error{Domain: DomainRecognizer, Code: int(code), Category: code.Category(), Err: err}
}

func newSDKError(code SDKErrorCode, err error) *Error {
	return &Error{Domain: DomainSDK, Code: int(code), Category: CategorySetup, Err: err}
}

// Sentinels for errors.Is.
var (
	ErrAlreadyRunning         = newSDKError(SDKErrorAlreadyRunning, nil)
	ErrInvalidLanguageCode    = newSDKError(SDKErrorInvalidLanguageCode, nil)
	ErrInvalidClientID        = newSDKError(SDKErrorInvalidClientID, nil)
	ErrInvalidRecognitionCode = newSDKError(SDKErrorInvalidRecognitionCode, nil)

	ErrNetworkInitialize  = newRecognizerError(RecognizerErrorNetworkInitialize, nil)
	ErrAudioInitialize    = newRecognizerError(RecognizerErrorAudioInitialize, nil)
	ErrAudioRecord        = newRecognizerError(RecognizerErrorAudioRecord, nil)
	ErrNoResult           = newRecognizerError(RecognizerErrorNoResult, nil)
	ErrTimeout            = newRecognizerError(RecognizerErrorTimeout, nil)
	ErrSpeechSizeExceeded = newRecognizerError(RecognizerErrorSpeechSizeExceeded, nil)
)

var ErrRecognizerClosed = errors.New("speech: recognizer closed")

// serverCodes are server NACK codes that carry their own meaning.
var serverCodes = map[int]bool{
	int(RecognizerErrorSecurity):          true,
	int(RecognizerErrorNoResult):          true,
	int(RecognizerErrorVersion):           true,
	int(RecognizerErrorClientInfo):        true,
	int(RecognizerErrorServerPool):        true,
	int(RecognizerErrorSessionExpired):    true,
	int(RecognizerErrorExceedTimeLimit):   true,
	int(RecognizerErrorWrongServiceCode):  true,
	int(RecognizerErrorWrongLanguageCode): true,
	int(RecognizerErrorOpenAPIAuth):       true,
	int(RecognizerErrorQuotaOverflow):     true,
}

// fromRuntime maps a transport or aggregation failure into the recognizer taxonomy.
func fromRuntime(err error) *Error {
	var speechErr *Error
	if errors.As(err, &speechErr) {
		return speechErr
	}

	switch {
	case errors.Is(err, transport.ErrFrameTooLarge):
		return newRecognizerError(RecognizerErrorSpeechSizeExceeded, err)
	case transport.IsTimeout(err):
		return newRecognizerError(RecognizerErrorTimeout, err)
	case errors.Is(err, transport.ErrUnknownEvent):
		return newRecognizerError(RecognizerErrorUnknownEvent, err)
	case errors.Is(err, transport.ErrClosed):
		return newRecognizerError(RecognizerErrorNetworkFinalize, err)
	case errors.Is(err, result.ErrNoResult):
		return newRecognizerError(RecognizerErrorNoResult, err)
	}

	var serverErr *transport.ServerError
	if errors.As(err, &serverErr) {
		if serverCodes[serverErr.Code] {
			return newRecognizerError(RecognizerErrorCode(serverErr.Code), err)
		}
		return newRecognizerError(RecognizerErrorNetworkNACK, err)
	}

	if op, ok := transport.FailedOp(err); ok {
		switch op {
		case transport.OpDial:
			return newRecognizerError(RecognizerErrorNetworkInitialize, err)
		case transport.OpWrite:
			return newRecognizerError(RecognizerErrorNetworkWrite, err)
		case transport.OpDecode:
			return newRecognizerError(RecognizerErrorPacket, err)
		}
	}
	return newRecognizerError(RecognizerErrorNetworkRead, err)
}
