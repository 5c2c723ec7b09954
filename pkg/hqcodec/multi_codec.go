package hqcodec

import (
	"bytes"
	"net/http"

	"go.uber.org/zap"
)

// MultiCodec presents one codec to the connection manager while fanning out
// to per-stream codecs internally. It owns the exchange registry, the shared
// compression context, and the connection's numbering invariants: the
// stream-ID high-water mark, the push-ID high-water mark, and the push-ID
// issuance counter.
//
// All methods must be invoked sequentially from one connection-associated
// execution context; nothing here blocks and no internal locking is
// provided.
type MultiCodec struct {
	*ControlCodec

	codecs        map[StreamID]*StreamCodec
	currentStream StreamID

	compression *CompressionContext

	// minUnseenStreamID is the smallest client-initiated bidirectional
	// stream identity not yet observed as created. Downstream only.
	minUnseenStreamID StreamID
	// minUnseenPushID is the smallest push identifier not yet observed on
	// ingress.
	minUnseenPushID uint64
	// nextPushID is the next push identifier to issue. Downstream only.
	nextPushID uint64

	encoderMaxData func() uint64
	logger         *zap.Logger
}

// NewMultiCodec creates the connection's multiplexing codec. A nil logger is
// replaced with a no-op one.
func NewMultiCodec(direction TransportDirection, logger *zap.Logger) *MultiCodec {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MultiCodec{
		ControlCodec:  NewControlCodec(direction, logger),
		codecs:        make(map[StreamID]*StreamCodec),
		currentStream: MaxStreamID,
		compression:   NewCompressionContext(),
		logger:        logger.Named("multicodec").With(zap.String("direction", direction.String())),
	}
	m.logger.Debug("created multi codec")
	return m
}

// Control exposes the embedded control codec, including its own OnIngress
// for the peer's control stream (shadowed on MultiCodec by the per-stream
// ingress dispatch below).
func (m *MultiCodec) Control() *ControlCodec {
	return m.ControlCodec
}

// Compression returns the connection's shared compression context.
func (m *MultiCodec) Compression() *CompressionContext {
	return m.compression
}

// QPACKEncoderWriteBuf is the outbound encoder-instruction channel the
// connection manager drains onto the QPACK encoder stream.
func (m *MultiCodec) QPACKEncoderWriteBuf() *bytes.Buffer {
	return m.compression.EncoderInstrBuf()
}

// QPACKDecoderWriteBuf is the outbound decoder-instruction channel.
func (m *MultiCodec) QPACKDecoderWriteBuf() *bytes.Buffer {
	return m.compression.DecoderInstrBuf()
}

// SetQPACKEncoderMaxData installs a callback reporting how much encoder
// instruction data the transport will currently accept. Stream codecs
// created afterwards consult it when emitting instructions.
func (m *MultiCodec) SetQPACKEncoderMaxData(fn func() uint64) {
	m.encoderMaxData = fn
}

// AddCodec creates and registers the codec for a newly opened stream. The
// codec is constructed with the connection role, the shared compression
// context and instruction buffers, the egress settings in force, and the
// currently registered callback. Re-adding a registered identity is a bug in
// the calling layer and panics.
//
// On the downstream side, registering a client-initiated bidirectional
// stream at or beyond the high-water mark advances the mark past it.
func (m *MultiCodec) AddCodec(id StreamID) *StreamCodec {
	_, exists := m.codecs[id]
	invariant(!exists, "AddCodec: stream %d already registered", id)

	if m.direction == DirectionDownstream && id.IsClientBidi() && id >= m.minUnseenStreamID {
		m.minUnseenStreamID = id + streamClassStride
	}

	codec := newStreamCodec(
		id,
		m.direction,
		m.compression,
		m.compression.EncoderInstrBuf(),
		m.compression.DecoderInstrBuf(),
		m.egressSettings,
		m.callback,
		m.encoderMaxData,
		m.logger,
	)
	m.codecs[id] = codec
	m.logger.Debug("added stream codec",
		zap.Uint64("streamID", uint64(id)),
		zap.Stringer("class", id.Class()),
		zap.Int("active", len(m.codecs)))
	return codec
}

// RemoveCodec unregisters and discards the codec for id. No-op if absent.
// Callers invoke this exactly once per stream at logical close; a forgotten
// removal leaks the codec for the connection's lifetime.
func (m *MultiCodec) RemoveCodec(id StreamID) {
	if _, exists := m.codecs[id]; exists {
		delete(m.codecs, id)
		m.logger.Debug("removed stream codec",
			zap.Uint64("streamID", uint64(id)),
			zap.Int("active", len(m.codecs)))
	}
}

// getCodec returns the registered codec for id. A lookup miss means the
// layer above routed traffic to a stream it never registered, which is a
// bug, not a network condition; it panics.
func (m *MultiCodec) getCodec(id StreamID) *StreamCodec {
	codec, ok := m.codecs[id]
	invariant(ok, "no codec registered for stream %d", id)
	return codec
}

func (m *MultiCodec) getCurrentCodec() *StreamCodec {
	invariant(m.currentStream != MaxStreamID, "ingress dispatch with no stream selected")
	return m.getCodec(m.currentStream)
}

// SetCurrentStream selects the target of the next ingress operation. It
// reports false and leaves the cursor unchanged when id is not registered,
// an ordinary timing condition the caller retries after registering the
// stream.
func (m *MultiCodec) SetCurrentStream(id StreamID) bool {
	if _, ok := m.codecs[id]; !ok {
		return false
	}
	m.currentStream = id
	return true
}

// OnIngress forwards stream bytes to the selected codec and returns the
// count consumed. The cursor resets as a side effect, so every ingress call
// requires a fresh SetCurrentStream; stale routing fails loudly instead of
// feeding bytes to the wrong exchange.
func (m *MultiCodec) OnIngress(b []byte) (int, error) {
	codec := m.getCurrentCodec()
	m.currentStream = MaxStreamID
	return codec.OnIngress(b)
}

// OnIngressEOF forwards the end-of-stream notice to the selected codec and
// resets the cursor identically.
func (m *MultiCodec) OnIngressEOF() error {
	codec := m.getCurrentCodec()
	m.currentStream = MaxStreamID
	return codec.OnIngressEOF()
}

// OnIngressPushID records a push identifier observed on ingress, advancing
// the push-ID high-water mark. Independent of the cursor.
func (m *MultiCodec) OnIngressPushID(pushID uint64) {
	if pushID+1 > m.minUnseenPushID {
		m.minUnseenPushID = pushID + 1
	}
}

// NextPushID issues the next push identifier. Producer side only; the
// consumer side calling this is a role violation and panics.
func (m *MultiCodec) NextPushID() uint64 {
	invariant(m.direction == DirectionDownstream, "NextPushID on %s side", m.direction)
	id := m.nextPushID
	m.nextPushID++
	return id
}

// MinUnseenStreamID is the stream-ID high-water mark: the smallest
// client-initiated bidirectional identity not yet registered.
func (m *MultiCodec) MinUnseenStreamID() StreamID {
	return m.minUnseenStreamID
}

// MinUnseenPushID is the push-ID high-water mark.
func (m *MultiCodec) MinUnseenPushID() uint64 {
	return m.minUnseenPushID
}

// SetCallback stores the shared observer and mirrors it onto the control
// codec and every currently registered stream codec. Codecs added later
// receive the value in force at creation.
func (m *MultiCodec) SetCallback(cb Callback) {
	m.ControlCodec.SetCallback(cb)
	for _, codec := range m.codecs {
		codec.SetCallback(cb)
	}
}

// GenerateHeader serializes msg onto stream. Egress targeting is explicit
// per call and never touches the ingress cursor.
func (m *MultiCodec) GenerateHeader(writeBuf *bytes.Buffer, stream StreamID, msg *Message, eom bool) (int, error) {
	return m.getCodec(stream).GenerateHeader(writeBuf, msg, eom)
}

// GeneratePushPromise serializes a PUSH_PROMISE for pushID onto stream.
func (m *MultiCodec) GeneratePushPromise(writeBuf *bytes.Buffer, stream StreamID, msg *Message, pushID uint64, eom bool) (int, error) {
	return m.getCodec(stream).GeneratePushPromise(writeBuf, msg, pushID, eom)
}

// GenerateBody serializes body bytes onto stream.
func (m *MultiCodec) GenerateBody(writeBuf *bytes.Buffer, stream StreamID, data []byte, eom bool) (int, error) {
	return m.getCodec(stream).GenerateBody(writeBuf, data, eom)
}

// GenerateTrailers serializes a trailing header section onto stream.
func (m *MultiCodec) GenerateTrailers(writeBuf *bytes.Buffer, stream StreamID, trailers http.Header) (int, error) {
	return m.getCodec(stream).GenerateTrailers(writeBuf, trailers)
}

// GenerateEOM marks egress complete on stream; no bytes are produced.
func (m *MultiCodec) GenerateEOM(writeBuf *bytes.Buffer, stream StreamID) (int, error) {
	return m.getCodec(stream).GenerateEOM(writeBuf)
}

// GenerateConnectionPreface is a no-op: HTTP/3 has no connection preface;
// the control-stream machinery outside this codec opens the connection.
func (m *MultiCodec) GenerateConnectionPreface(writeBuf *bytes.Buffer) int {
	return 0
}

// GenerateSettingsAck is a no-op: HTTP/3 settings are not acknowledged.
func (m *MultiCodec) GenerateSettingsAck(writeBuf *bytes.Buffer) int {
	return 0
}

// SupportsParallelRequests is always true; the whole point of this codec is
// true multiplexing.
func (m *MultiCodec) SupportsParallelRequests() bool {
	return true
}

// CompressionInfo returns the shared compression context's accounting
// snapshot.
func (m *MultiCodec) CompressionInfo() CompressionInfo {
	return m.compression.Info()
}
