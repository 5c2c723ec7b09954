package hqcodec

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/hqmux/pkg/hqframe"
)

// ControlCodec owns the connection-level codec state that is independent of
// any one exchange: the two settings instances, the registered callback, the
// control-stream identity, and GOAWAY bookkeeping. MultiCodec embeds it by
// composition and delegates these concerns to it.
type ControlCodec struct {
	direction       TransportDirection
	controlStreamID StreamID

	ingressSettings *Settings
	egressSettings  *Settings

	callback Callback
	logger   *zap.Logger

	sentGoaway     bool
	receivedGoaway bool
	// sentGoawayID is the identifier of the last GOAWAY sent. Later GOAWAYs
	// must not name a larger one (RFC 9114 Section 5.2).
	sentGoawayID     uint64
	receivedGoawayID uint64

	sentSettings     bool
	receivedSettings bool

	// ingress reassembly for the peer's control stream.
	pending       bytes.Buffer
	hdr           hqframe.FrameHeader
	hdrValid      bool
	skipRemaining uint64 // unread payload of a frame being discarded
}

// maxControlFramePayload bounds how much of one known control frame is
// buffered for reassembly. Legitimate SETTINGS, GOAWAY, CANCEL_PUSH and
// MAX_PUSH_ID payloads are tiny; anything near this bound is hostile.
const maxControlFramePayload = 16 << 10

// NewControlCodec creates the control-level codec for one connection. The
// control-stream identity starts at the sentinel until the transport assigns
// one via SetControlStreamID.
func NewControlCodec(direction TransportDirection, logger *zap.Logger) *ControlCodec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ControlCodec{
		direction:       direction,
		controlStreamID: MaxStreamID,
		ingressSettings: NewSettings(),
		egressSettings:  NewDefaultEgressSettings(),
		logger:          logger.Named("controlcodec"),
	}
}

// Direction returns the connection role fixed at construction.
func (c *ControlCodec) Direction() TransportDirection {
	return c.direction
}

// ControlStreamID returns the connection's control-stream identity.
func (c *ControlCodec) ControlStreamID() StreamID {
	return c.controlStreamID
}

// SetControlStreamID records the transport-assigned control-stream identity.
func (c *ControlCodec) SetControlStreamID(id StreamID) {
	c.controlStreamID = id
}

// IngressSettings is the settings instance received from the peer.
func (c *ControlCodec) IngressSettings() *Settings {
	return c.ingressSettings
}

// EgressSettings is the settings instance to be sent to the peer. Mutations
// affect only codecs created afterwards.
func (c *ControlCodec) EgressSettings() *Settings {
	return c.egressSettings
}

// SetCallback stores the shared observer.
func (c *ControlCodec) SetCallback(cb Callback) {
	c.callback = cb
}

// Callback returns the currently registered observer, which may be nil.
func (c *ControlCodec) Callback() Callback {
	return c.callback
}

// SentGoaway reports whether a GOAWAY has been generated on this connection.
func (c *ControlCodec) SentGoaway() bool {
	return c.sentGoaway
}

// ReceivedGoaway reports whether the peer has sent a GOAWAY.
func (c *ControlCodec) ReceivedGoaway() bool {
	return c.receivedGoaway
}

// IsReusable reports whether the connection may accept new exchanges. It
// turns false once a GOAWAY has been sent.
func (c *ControlCodec) IsReusable() bool {
	return !c.sentGoaway
}

// GenerateSettings serializes the egress settings as the control stream's
// opening SETTINGS frame and returns the bytes written.
func (c *ControlCodec) GenerateSettings(writeBuf *bytes.Buffer) (int, error) {
	list := c.egressSettings.List()
	payloadLen := hqframe.SettingsPayloadLen(list)
	n := hqframe.AppendFrameHeader(writeBuf, hqframe.FrameSettings, payloadLen)
	n += hqframe.AppendSettingsPayload(writeBuf, list)
	c.sentSettings = true
	c.logger.Debug("generated SETTINGS", zap.Int("settings", len(list)), zap.Int("bytes", n))
	return n, nil
}

// GenerateGoaway serializes a GOAWAY naming lastID as the first identifier
// not processed. Repeated GOAWAYs must not increase the identifier.
func (c *ControlCodec) GenerateGoaway(writeBuf *bytes.Buffer, lastID uint64) (int, error) {
	if c.sentGoaway && lastID > c.sentGoawayID {
		return 0, fmt.Errorf("GOAWAY id %d exceeds previously sent %d", lastID, c.sentGoawayID)
	}
	n := hqframe.AppendFrameHeader(writeBuf, hqframe.FrameGoaway, uint64(hqframe.VarintLen(lastID)))
	n += hqframe.AppendVarint(writeBuf, lastID)
	c.sentGoaway = true
	c.sentGoawayID = lastID
	c.logger.Debug("generated GOAWAY", zap.Uint64("lastID", lastID))
	return n, nil
}

// GenerateMaxPushID serializes a MAX_PUSH_ID frame. Only the upstream side
// grants push credit.
func (c *ControlCodec) GenerateMaxPushID(writeBuf *bytes.Buffer, maxPushID uint64) (int, error) {
	invariant(c.direction == DirectionUpstream, "MAX_PUSH_ID generated by %s side", c.direction)
	n := hqframe.AppendFrameHeader(writeBuf, hqframe.FrameMaxPushID, uint64(hqframe.VarintLen(maxPushID)))
	n += hqframe.AppendVarint(writeBuf, maxPushID)
	return n, nil
}

// GenerateCancelPush serializes a CANCEL_PUSH frame for pushID.
func (c *ControlCodec) GenerateCancelPush(writeBuf *bytes.Buffer, pushID uint64) (int, error) {
	n := hqframe.AppendFrameHeader(writeBuf, hqframe.FrameCancelPush, uint64(hqframe.VarintLen(pushID)))
	n += hqframe.AppendVarint(writeBuf, pushID)
	return n, nil
}

// OnIngress consumes bytes from the peer's control stream, dispatching
// complete frames to the callback. The first frame must be SETTINGS
// (RFC 9114 Section 6.2.1). It always consumes the full input; protocol
// violations surface as a *ProtocolError the connection manager terminates
// the connection with.
func (c *ControlCodec) OnIngress(b []byte) (int, error) {
	c.pending.Write(b)
	for {
		// Discard a skipped frame's payload as it arrives, without
		// buffering it.
		if c.skipRemaining > 0 {
			n := uint64(c.pending.Len())
			if n == 0 {
				return len(b), nil
			}
			if n > c.skipRemaining {
				n = c.skipRemaining
			}
			c.pending.Next(int(n))
			c.skipRemaining -= n
			continue
		}

		if !c.hdrValid {
			hdr, n, err := hqframe.ParseFrameHeader(c.pending.Bytes())
			if err != nil {
				return len(b), nil // incomplete header, wait for more
			}
			c.pending.Next(n)
			c.hdr = hdr
			c.hdrValid = true
		}

		switch c.hdr.Type {
		case hqframe.FrameData, hqframe.FrameHeaders, hqframe.FramePushPromise,
			hqframe.FrameSettings, hqframe.FrameGoaway, hqframe.FrameCancelPush,
			hqframe.FrameMaxPushID:
			// Reassembled below.
		default:
			// Reserved and unknown frame types are skipped (RFC 9114
			// Section 9); only greased types may precede SETTINGS.
			if !c.receivedSettings && !c.hdr.Type.IsReserved() {
				return len(b), newProtocolError(hqframe.ErrCodeMissingSettings, c.controlStreamID,
					"first control frame is %s, not SETTINGS", c.hdr.Type)
			}
			c.hdrValid = false
			c.skipRemaining = c.hdr.Length
			continue
		}

		if c.hdr.Length > maxControlFramePayload {
			return len(b), newProtocolError(hqframe.ErrCodeExcessiveLoad, c.controlStreamID,
				"%s frame of %d bytes exceeds limit %d", c.hdr.Type, c.hdr.Length, uint64(maxControlFramePayload))
		}
		if uint64(c.pending.Len()) < c.hdr.Length {
			return len(b), nil // incomplete payload
		}
		payload := c.pending.Next(int(c.hdr.Length))
		c.hdrValid = false
		if err := c.processControlFrame(c.hdr.Type, payload); err != nil {
			return len(b), err
		}
	}
}

func (c *ControlCodec) processControlFrame(t hqframe.FrameType, payload []byte) error {
	if !c.receivedSettings && t != hqframe.FrameSettings {
		return newProtocolError(hqframe.ErrCodeMissingSettings, c.controlStreamID,
			"first control frame is %s, not SETTINGS", t)
	}

	switch t {
	case hqframe.FrameSettings:
		if c.receivedSettings {
			return newProtocolError(hqframe.ErrCodeFrameUnexpected, c.controlStreamID, "repeated SETTINGS")
		}
		settings, err := hqframe.ParseSettingsPayload(payload)
		if err != nil {
			return newProtocolError(hqframe.ErrCodeSettingsError, c.controlStreamID, "%v", err)
		}
		c.receivedSettings = true
		c.ingressSettings.Apply(settings)
		if c.callback != nil {
			c.callback.OnSettings(settings)
		}

	case hqframe.FrameGoaway:
		id, n, err := hqframe.ParseVarint(payload)
		if err != nil || n != len(payload) {
			return newProtocolError(hqframe.ErrCodeFrameError, c.controlStreamID, "malformed GOAWAY payload")
		}
		if c.receivedGoaway && id > c.receivedGoawayID {
			return newProtocolError(hqframe.ErrCodeIDError, c.controlStreamID,
				"GOAWAY id %d exceeds previously received %d", id, c.receivedGoawayID)
		}
		c.receivedGoaway = true
		c.receivedGoawayID = id
		if c.callback != nil {
			c.callback.OnGoaway(id)
		}

	case hqframe.FrameCancelPush:
		id, n, err := hqframe.ParseVarint(payload)
		if err != nil || n != len(payload) {
			return newProtocolError(hqframe.ErrCodeFrameError, c.controlStreamID, "malformed CANCEL_PUSH payload")
		}
		if c.callback != nil {
			c.callback.OnCancelPush(id)
		}

	case hqframe.FrameMaxPushID:
		if c.direction != DirectionDownstream {
			return newProtocolError(hqframe.ErrCodeFrameUnexpected, c.controlStreamID,
				"MAX_PUSH_ID received by the upstream side")
		}
		id, n, err := hqframe.ParseVarint(payload)
		if err != nil || n != len(payload) {
			return newProtocolError(hqframe.ErrCodeFrameError, c.controlStreamID, "malformed MAX_PUSH_ID payload")
		}
		if c.callback != nil {
			c.callback.OnMaxPushID(id)
		}

	case hqframe.FrameData, hqframe.FrameHeaders, hqframe.FramePushPromise:
		return newProtocolError(hqframe.ErrCodeFrameUnexpected, c.controlStreamID,
			"%s frame on control stream", t)
	}
	return nil
}
