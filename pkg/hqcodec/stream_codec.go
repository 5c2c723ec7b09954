package hqcodec

import (
	"bytes"
	"math"
	"net/http"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hqmux/pkg/hqframe"
)

// StreamCodec encodes and decodes one HTTP exchange's frames on a single
// request stream. It consumes the connection's shared compression context and
// instruction buffers by reference; the MultiCodec exclusively owns it from
// AddCodec to RemoveCodec.
type StreamCodec struct {
	streamID  StreamID
	direction TransportDirection

	compression  *CompressionContext
	encoderInstr *bytes.Buffer
	decoderInstr *bytes.Buffer

	// maxFieldSectionSize is snapshotted from the egress settings at
	// construction; later settings changes do not affect this codec.
	maxFieldSectionSize uint64

	callback Callback
	// encoderMaxData reports the transport's current credit for encoder
	// instructions. The static-table encoder emits none, so nothing reads
	// it until a dynamic-table engine replaces that encoder.
	encoderMaxData func() uint64
	logger         *zap.Logger

	// ingress reassembly.
	pending       bytes.Buffer
	hdr           hqframe.FrameHeader
	hdrValid      bool
	dataRemaining uint64 // unread payload of the DATA frame in progress
	skipRemaining uint64 // unread payload of a frame being discarded

	headersDelivered  bool
	trailersDelivered bool
	ingressFinished   bool
	ingressErr        error

	// egress state.
	headerGenerated bool
	eomGenerated    bool
}

func newStreamCodec(
	id StreamID,
	direction TransportDirection,
	compression *CompressionContext,
	encoderInstr, decoderInstr *bytes.Buffer,
	egressSettings *Settings,
	callback Callback,
	encoderMaxData func() uint64,
	logger *zap.Logger,
) *StreamCodec {
	return &StreamCodec{
		streamID:            id,
		direction:           direction,
		compression:         compression,
		encoderInstr:        encoderInstr,
		decoderInstr:        decoderInstr,
		maxFieldSectionSize: egressSettings.GetOr(hqframe.SettingMaxFieldSectionSize, math.MaxUint64),
		callback:            callback,
		encoderMaxData:      encoderMaxData,
		logger:              logger.Named("streamcodec").With(zap.Uint64("streamID", uint64(id))),
	}
}

// StreamID returns the identity of the stream this codec serves.
func (c *StreamCodec) StreamID() StreamID {
	return c.streamID
}

// SetCallback installs the shared observer on this codec.
func (c *StreamCodec) SetCallback(cb Callback) {
	c.callback = cb
}

// OnIngress consumes one chunk of stream bytes, dispatching callbacks for
// every complete frame. The input is always fully consumed; partial frames
// are buffered until the next call. Once a protocol error is returned the
// codec is poisoned and every later call returns the same error.
func (c *StreamCodec) OnIngress(b []byte) (int, error) {
	if c.ingressErr != nil {
		return 0, c.ingressErr
	}
	c.pending.Write(b)
	if err := c.drainPending(); err != nil {
		c.ingressErr = err
		return len(b), err
	}
	return len(b), nil
}

// OnIngressEOF delivers the end-of-stream notice, completing the message or
// reporting a truncated one.
func (c *StreamCodec) OnIngressEOF() error {
	if c.ingressErr != nil {
		return c.ingressErr
	}
	if c.ingressFinished {
		return nil
	}
	c.ingressFinished = true

	midFrame := c.hdrValid || c.dataRemaining > 0 || c.skipRemaining > 0 || c.pending.Len() > 0
	if midFrame {
		c.ingressErr = newProtocolError(hqframe.ErrCodeFrameError, c.streamID, "stream ended mid-frame")
		return c.ingressErr
	}
	if !c.headersDelivered {
		c.ingressErr = newProtocolError(hqframe.ErrCodeRequestIncomplete, c.streamID, "stream ended before a header section")
		return c.ingressErr
	}
	if c.callback != nil {
		c.callback.OnMessageComplete(c.streamID)
	}
	return nil
}

func (c *StreamCodec) drainPending() error {
	for {
		// Stream DATA payload through without buffering the whole frame.
		if c.dataRemaining > 0 {
			chunk := c.takePending(c.dataRemaining)
			if len(chunk) == 0 {
				return nil
			}
			c.dataRemaining -= uint64(len(chunk))
			if c.callback != nil {
				c.callback.OnBody(c.streamID, chunk)
			}
			continue
		}
		if c.skipRemaining > 0 {
			chunk := c.takePending(c.skipRemaining)
			if len(chunk) == 0 {
				return nil
			}
			c.skipRemaining -= uint64(len(chunk))
			continue
		}

		if !c.hdrValid {
			hdr, n, err := hqframe.ParseFrameHeader(c.pending.Bytes())
			if err != nil {
				return nil // incomplete frame header
			}
			c.pending.Next(n)
			c.hdr = hdr
			c.hdrValid = true
			if err := c.onFrameHeader(hdr); err != nil {
				return err
			}
			// DATA and skipped frames hand control back to the streaming
			// branches above; everything else is reassembled in full.
			if !c.hdrValid {
				continue
			}
		}

		if uint64(c.pending.Len()) < c.hdr.Length {
			return nil // incomplete payload
		}
		payload := c.pending.Next(int(c.hdr.Length))
		c.hdrValid = false
		if err := c.onFramePayload(c.hdr.Type, payload); err != nil {
			return err
		}
	}
}

// takePending removes and returns up to max buffered bytes.
func (c *StreamCodec) takePending(max uint64) []byte {
	n := uint64(c.pending.Len())
	if n > max {
		n = max
	}
	return c.pending.Next(int(n))
}

// onFrameHeader validates the frame type against the exchange state. For
// streamed (DATA) and skipped frames it consumes the header immediately by
// clearing hdrValid and setting the matching remaining counter.
func (c *StreamCodec) onFrameHeader(hdr hqframe.FrameHeader) error {
	switch hdr.Type {
	case hqframe.FrameData:
		if !c.headersDelivered {
			return newProtocolError(hqframe.ErrCodeFrameUnexpected, c.streamID, "DATA before a header section")
		}
		if c.trailersDelivered {
			return newProtocolError(hqframe.ErrCodeFrameUnexpected, c.streamID, "DATA after trailers")
		}
		c.hdrValid = false
		c.dataRemaining = hdr.Length

	case hqframe.FrameHeaders:
		if c.trailersDelivered {
			return newProtocolError(hqframe.ErrCodeFrameUnexpected, c.streamID, "header section after trailers")
		}
		if hdr.Length > c.maxFieldSectionSize {
			return newProtocolError(hqframe.ErrCodeExcessiveLoad, c.streamID,
				"field section of %d bytes exceeds limit %d", hdr.Length, c.maxFieldSectionSize)
		}
		if !c.headersDelivered && c.callback != nil {
			c.callback.OnMessageBegin(c.streamID)
		}

	case hqframe.FramePushPromise:
		if c.direction != DirectionUpstream {
			return newProtocolError(hqframe.ErrCodeFrameUnexpected, c.streamID,
				"PUSH_PROMISE received by the downstream side")
		}
		// The payload is a push-ID varint (at most 8 bytes) plus a field
		// section under the same size limit as HEADERS.
		limit := c.maxFieldSectionSize
		if limit <= math.MaxUint64-8 {
			limit += 8
		}
		if hdr.Length > limit {
			return newProtocolError(hqframe.ErrCodeExcessiveLoad, c.streamID,
				"PUSH_PROMISE of %d bytes exceeds limit %d", hdr.Length, limit)
		}

	case hqframe.FrameSettings, hqframe.FrameGoaway, hqframe.FrameCancelPush, hqframe.FrameMaxPushID:
		return newProtocolError(hqframe.ErrCodeFrameUnexpected, c.streamID,
			"%s frame on a request stream", hdr.Type)

	default:
		// Reserved and unknown frame types are skipped (RFC 9114 Section 9).
		c.hdrValid = false
		c.skipRemaining = hdr.Length
	}
	return nil
}

func (c *StreamCodec) onFramePayload(t hqframe.FrameType, payload []byte) error {
	switch t {
	case hqframe.FrameHeaders:
		fields, err := c.compression.DecodeHeaderBlock(payload)
		if err != nil {
			return newProtocolError(hqframe.ErrCodeQPACKDecompression, c.streamID, "%v", err)
		}
		if c.headersDelivered {
			trailers, err := trailerFromFields(fields)
			if err != nil {
				return newProtocolError(hqframe.ErrCodeMessageError, c.streamID, "%v", err)
			}
			c.trailersDelivered = true
			if c.callback != nil {
				c.callback.OnTrailersComplete(c.streamID, trailers)
			}
			return nil
		}
		msg, err := messageFromFields(fields)
		if err != nil {
			return newProtocolError(hqframe.ErrCodeMessageError, c.streamID, "%v", err)
		}
		c.headersDelivered = true
		if c.callback != nil {
			c.callback.OnHeadersComplete(c.streamID, msg)
		}

	case hqframe.FramePushPromise:
		pushID, n, err := hqframe.ParseVarint(payload)
		if err != nil {
			return newProtocolError(hqframe.ErrCodeFrameError, c.streamID, "truncated push ID")
		}
		fields, err := c.compression.DecodeHeaderBlock(payload[n:])
		if err != nil {
			return newProtocolError(hqframe.ErrCodeQPACKDecompression, c.streamID, "%v", err)
		}
		msg, err := messageFromFields(fields)
		if err != nil || !msg.IsRequest() {
			return newProtocolError(hqframe.ErrCodeMessageError, c.streamID, "PUSH_PROMISE without a valid request section")
		}
		if c.callback != nil {
			c.callback.OnPushPromise(c.streamID, pushID, msg)
		}
	}
	return nil
}

// GenerateHeader serializes msg as this stream's header section, appending a
// HEADERS frame to writeBuf. It returns the bytes written. With eom set the
// caller signals end-of-message out of band (stream FIN), exactly as
// GenerateEOM would.
func (c *StreamCodec) GenerateHeader(writeBuf *bytes.Buffer, msg *Message, eom bool) (int, error) {
	fields, err := msg.headerFields()
	if err != nil {
		return 0, err
	}
	block, err := c.compression.EncodeHeaderBlock(fields)
	if err != nil {
		return 0, err
	}
	n := hqframe.AppendFrameHeader(writeBuf, hqframe.FrameHeaders, uint64(len(block)))
	writeBuf.Write(block)
	n += len(block)
	c.headerGenerated = true
	if eom {
		c.eomGenerated = true
	}
	c.logger.Debug("generated HEADERS", zap.Int("bytes", n), zap.Bool("eom", eom))
	return n, nil
}

// GeneratePushPromise serializes a PUSH_PROMISE carrying the promised
// request msg under pushID. Producer side only.
func (c *StreamCodec) GeneratePushPromise(writeBuf *bytes.Buffer, msg *Message, pushID uint64, eom bool) (int, error) {
	invariant(c.direction == DirectionDownstream, "PUSH_PROMISE generated by %s side", c.direction)
	fields, err := msg.headerFields()
	if err != nil {
		return 0, err
	}
	block, err := c.compression.EncodeHeaderBlock(fields)
	if err != nil {
		return 0, err
	}
	payloadLen := uint64(hqframe.VarintLen(pushID) + len(block))
	n := hqframe.AppendFrameHeader(writeBuf, hqframe.FramePushPromise, payloadLen)
	n += hqframe.AppendVarint(writeBuf, pushID)
	writeBuf.Write(block)
	n += len(block)
	if eom {
		c.eomGenerated = true
	}
	return n, nil
}

// GenerateBody appends body bytes as a DATA frame and returns the bytes
// written. A call with no data and eom set produces no frame; the FIN alone
// ends the message.
func (c *StreamCodec) GenerateBody(writeBuf *bytes.Buffer, data []byte, eom bool) (int, error) {
	n := 0
	if len(data) > 0 {
		n = hqframe.AppendFrameHeader(writeBuf, hqframe.FrameData, uint64(len(data)))
		writeBuf.Write(data)
		n += len(data)
	}
	if eom {
		c.eomGenerated = true
	}
	return n, nil
}

// GenerateTrailers serializes a trailing header section. Trailers always
// end the message.
func (c *StreamCodec) GenerateTrailers(writeBuf *bytes.Buffer, trailers http.Header) (int, error) {
	fields, err := regularFields(trailers)
	if err != nil {
		return 0, err
	}
	block, err := c.compression.EncodeHeaderBlock(fields)
	if err != nil {
		return 0, err
	}
	n := hqframe.AppendFrameHeader(writeBuf, hqframe.FrameHeaders, uint64(len(block)))
	writeBuf.Write(block)
	n += len(block)
	c.eomGenerated = true
	return n, nil
}

// GenerateEOM marks egress complete. HTTP/3 has no end-of-message frame; the
// transport's stream FIN carries it, so no bytes are produced.
func (c *StreamCodec) GenerateEOM(writeBuf *bytes.Buffer) (int, error) {
	c.eomGenerated = true
	return 0, nil
}
