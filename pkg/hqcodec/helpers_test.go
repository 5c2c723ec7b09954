package hqcodec

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/quic-go/qpack"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/hqmux/pkg/hqframe"
)

// codecEvent records one callback invocation for assertions.
type codecEvent struct {
	kind     string
	stream   StreamID
	pushID   uint64
	msg      *Message
	data     []byte
	trailers http.Header
	settings []hqframe.Setting
	value    uint64
}

// recordingCallback captures every codec event in arrival order.
type recordingCallback struct {
	events []codecEvent
}

var _ Callback = (*recordingCallback)(nil)

func (r *recordingCallback) OnMessageBegin(stream StreamID) {
	r.events = append(r.events, codecEvent{kind: "messageBegin", stream: stream})
}

func (r *recordingCallback) OnPushPromise(stream StreamID, pushID uint64, msg *Message) {
	r.events = append(r.events, codecEvent{kind: "pushPromise", stream: stream, pushID: pushID, msg: msg})
}

func (r *recordingCallback) OnHeadersComplete(stream StreamID, msg *Message) {
	r.events = append(r.events, codecEvent{kind: "headersComplete", stream: stream, msg: msg})
}

func (r *recordingCallback) OnBody(stream StreamID, data []byte) {
	r.events = append(r.events, codecEvent{kind: "body", stream: stream, data: append([]byte(nil), data...)})
}

func (r *recordingCallback) OnTrailersComplete(stream StreamID, trailers http.Header) {
	r.events = append(r.events, codecEvent{kind: "trailersComplete", stream: stream, trailers: trailers})
}

func (r *recordingCallback) OnMessageComplete(stream StreamID) {
	r.events = append(r.events, codecEvent{kind: "messageComplete", stream: stream})
}

func (r *recordingCallback) OnSettings(settings []hqframe.Setting) {
	r.events = append(r.events, codecEvent{kind: "settings", settings: settings})
}

func (r *recordingCallback) OnGoaway(lastID uint64) {
	r.events = append(r.events, codecEvent{kind: "goaway", value: lastID})
}

func (r *recordingCallback) OnCancelPush(pushID uint64) {
	r.events = append(r.events, codecEvent{kind: "cancelPush", pushID: pushID})
}

func (r *recordingCallback) OnMaxPushID(maxPushID uint64) {
	r.events = append(r.events, codecEvent{kind: "maxPushID", value: maxPushID})
}

func (r *recordingCallback) kinds() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

func (r *recordingCallback) bodyBytes(stream StreamID) []byte {
	var buf bytes.Buffer
	for _, e := range r.events {
		if e.kind == "body" && e.stream == stream {
			buf.Write(e.data)
		}
	}
	return buf.Bytes()
}

func (r *recordingCallback) find(kind string) *codecEvent {
	for i := range r.events {
		if r.events[i].kind == kind {
			return &r.events[i]
		}
	}
	return nil
}

// encodeFieldSection builds a QPACK block with a throwaway context, for
// hand-assembled ingress frames.
func encodeFieldSection(t *testing.T, fields []qpack.HeaderField) []byte {
	t.Helper()
	block, err := NewCompressionContext().EncodeHeaderBlock(fields)
	require.NoError(t, err)
	return block
}

// appendHeadersFrame appends a HEADERS frame carrying fields to buf.
func appendHeadersFrame(t *testing.T, buf *bytes.Buffer, fields []qpack.HeaderField) {
	t.Helper()
	block := encodeFieldSection(t, fields)
	hqframe.AppendFrameHeader(buf, hqframe.FrameHeaders, uint64(len(block)))
	buf.Write(block)
}

// appendDataFrame appends a DATA frame to buf.
func appendDataFrame(buf *bytes.Buffer, payload []byte) {
	hqframe.AppendFrameHeader(buf, hqframe.FrameData, uint64(len(payload)))
	buf.Write(payload)
}

var requestFields = []qpack.HeaderField{
	{Name: ":method", Value: "GET"},
	{Name: ":scheme", Value: "https"},
	{Name: ":path", Value: "/index.html"},
	{Name: ":authority", Value: "example.com"},
	{Name: "user-agent", Value: "hqmux-test"},
}
