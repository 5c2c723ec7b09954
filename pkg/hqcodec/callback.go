package hqcodec

import (
	"net/http"

	"github.com/xkilldash9x/hqmux/pkg/hqframe"
)

// Callback is the single shared observer for codec results. One value is set
// on the MultiCodec and mirrored onto the control codec and every registered
// stream codec; codecs created later receive the value in force at creation.
//
// All callbacks run synchronously on the connection's execution context.
type Callback interface {
	// OnMessageBegin fires when the first HEADERS frame of an exchange
	// starts arriving on stream.
	OnMessageBegin(stream StreamID)
	// OnPushPromise delivers a decoded PUSH_PROMISE received on stream:
	// the promised request msg under push identifier pushID.
	OnPushPromise(stream StreamID, pushID uint64, msg *Message)
	// OnHeadersComplete delivers the decoded header section.
	OnHeadersComplete(stream StreamID, msg *Message)
	// OnBody delivers one chunk of DATA payload. The slice is only valid
	// for the duration of the call.
	OnBody(stream StreamID, data []byte)
	// OnTrailersComplete delivers a decoded trailing header section.
	OnTrailersComplete(stream StreamID, trailers http.Header)
	// OnMessageComplete fires at end-of-stream once the exchange's ingress
	// is fully delivered.
	OnMessageComplete(stream StreamID)

	// Control-stream events.
	OnSettings(settings []hqframe.Setting)
	OnGoaway(lastID uint64)
	OnCancelPush(pushID uint64)
	OnMaxPushID(maxPushID uint64)
}

// CallbackBase is a no-op Callback implementation meant for embedding, so
// observers only override the events they care about.
type CallbackBase struct{}

var _ Callback = CallbackBase{}

func (CallbackBase) OnMessageBegin(StreamID)                  {}
func (CallbackBase) OnPushPromise(StreamID, uint64, *Message) {}
func (CallbackBase) OnHeadersComplete(StreamID, *Message)     {}
func (CallbackBase) OnBody(StreamID, []byte)                  {}
func (CallbackBase) OnTrailersComplete(StreamID, http.Header) {}
func (CallbackBase) OnMessageComplete(StreamID)               {}
func (CallbackBase) OnSettings([]hqframe.Setting)             {}
func (CallbackBase) OnGoaway(uint64)                          {}
func (CallbackBase) OnCancelPush(uint64)                      {}
func (CallbackBase) OnMaxPushID(uint64)                       {}
