package speech

import (
	"sync/atomic"

	"github.com/liuscraft/orion-speech/internal/epd"
	"github.com/liuscraft/orion-speech/internal/result"
)

// Listener receives the final result of every session that is not cancelled.
// The other notifications are opt-in through the interfaces below.
type Listener interface {
	DidReceiveResult(r *Recognizer, res result.RecognizedResult)
}

type ReadyListener interface {
	EnteredReady(r *Recognizer)
}

type SpeechDataListener interface {
	// DidRecordSpeechData receives a copy of every captured frame.
	DidRecordSpeechData(r *Recognizer, data []byte)
}

type EPDTypeListener interface {
	DidSelectEndPointDetectType(r *Recognizer, t epd.Type)
}

type PartialResultListener interface {
	DidReceivePartialResult(r *Recognizer, text string)
}

type EndPointListener interface {
	DidDetectEndPoint(r *Recognizer)
}

type ErrorListener interface {
	DidReceiveError(r *Recognizer, err *Error)
}

type InactiveListener interface {
	EnteredInactive(r *Recognizer)
}

// ListenerHandle is the registration returned by SetListener. After Revoke
// every delivery through it is a no-op.
type ListenerHandle struct {
	revoked atomic.Bool

	listener Listener
	ready    ReadyListener
	data     SpeechDataListener
	epdType  EPDTypeListener
	partial  PartialResultListener
	endPoint EndPointListener
	err      ErrorListener
	inactive InactiveListener
}

func newListenerHandle(l Listener) *ListenerHandle {
	h := &ListenerHandle{listener: l}
	h.ready, _ = l.(ReadyListener)
	h.data, _ = l.(SpeechDataListener)
	h.epdType, _ = l.(EPDTypeListener)
	h.partial, _ = l.(PartialResultListener)
	h.endPoint, _ = l.(EndPointListener)
	h.err, _ = l.(ErrorListener)
	h.inactive, _ = l.(InactiveListener)
	return h
}

func (h *ListenerHandle) Revoke() {
	h.revoked.Store(true)
}

func (h *ListenerHandle) Revoked() bool {
	return h.revoked.Load()
}

func (h *ListenerHandle) live() bool {
	return h != nil && !h.revoked.Load()
}

func (h *ListenerHandle) enteredReady(r *Recognizer) {
	if h.live() && h.ready != nil {
		h.ready.EnteredReady(r)
	}
}

func (h *ListenerHandle) didRecordSpeechData(r *Recognizer, data []byte) {
	if h.live() && h.data != nil {
		h.data.DidRecordSpeechData(r, data)
	}
}

func (h *ListenerHandle) didSelectEndPointDetectType(r *Recognizer, t epd.Type) {
	if h.live() && h.epdType != nil {
		h.epdType.DidSelectEndPointDetectType(r, t)
	}
}

func (h *ListenerHandle) didReceivePartialResult(r *Recognizer, text string) {
	if h.live() && h.partial != nil {
		h.partial.DidReceivePartialResult(r, text)
	}
}

func (h *ListenerHandle) didDetectEndPoint(r *Recognizer) {
	if h.live() && h.endPoint != nil {
		h.endPoint.DidDetectEndPoint(r)
	}
}

func (h *ListenerHandle) didReceiveResult(r *Recognizer, res result.RecognizedResult) {
	if h.live() {
		h.listener.DidReceiveResult(r, res)
	}
}

func (h *ListenerHandle) didReceiveError(r *Recognizer, err *Error) {
	if h.live() && h.err != nil {
		h.err.DidReceiveError(r, err)
	}
}

func (h *ListenerHandle) enteredInactive(r *Recognizer) {
	if h.live() && h.inactive != nil {
		h.inactive.EnteredInactive(r)
	}
}
