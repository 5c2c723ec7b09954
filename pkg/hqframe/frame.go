// Package hqframe implements the HTTP/3 frame syntax (RFC 9114 Section 7):
// variable-length-integer framing, frame type identifiers, and the payload
// layouts of the control frames. It owns no stream or connection state; the
// codec layer above drives it.
package hqframe

import (
	"bytes"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// FrameType identifies an HTTP/3 frame (RFC 9114 Section 7.2).
type FrameType uint64

const (
	FrameData        FrameType = 0x0
	FrameHeaders     FrameType = 0x1
	FrameCancelPush  FrameType = 0x3
	FrameSettings    FrameType = 0x4
	FramePushPromise FrameType = 0x5
	FrameGoaway      FrameType = 0x7
	FrameMaxPushID   FrameType = 0xd
)

// IsReserved reports whether t is a reserved ("greased") frame type of the
// form 0x1f * N + 0x21 (RFC 9114 Section 7.2.8). Reserved frames carry no
// semantics and must be skipped.
func (t FrameType) IsReserved() bool {
	return t >= 0x21 && (uint64(t)-0x21)%0x1f == 0
}

func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	case FrameCancelPush:
		return "CANCEL_PUSH"
	case FrameSettings:
		return "SETTINGS"
	case FramePushPromise:
		return "PUSH_PROMISE"
	case FrameGoaway:
		return "GOAWAY"
	case FrameMaxPushID:
		return "MAX_PUSH_ID"
	default:
		if t.IsReserved() {
			return fmt.Sprintf("RESERVED(0x%x)", uint64(t))
		}
		return fmt.Sprintf("UNKNOWN(0x%x)", uint64(t))
	}
}

// FrameHeader is the decoded type/length prefix of one frame.
type FrameHeader struct {
	Type   FrameType
	Length uint64
}

// ParseFrameHeader decodes a frame header from the front of b. It returns the
// header and the number of bytes it occupied. If b does not yet hold a
// complete header, it returns io.ErrUnexpectedEOF and the caller should retry
// once more bytes arrive.
func ParseFrameHeader(b []byte) (FrameHeader, int, error) {
	t, n, err := quicvarint.Parse(b)
	if err != nil {
		return FrameHeader{}, 0, io.ErrUnexpectedEOF
	}
	l, m, err := quicvarint.Parse(b[n:])
	if err != nil {
		return FrameHeader{}, 0, io.ErrUnexpectedEOF
	}
	return FrameHeader{Type: FrameType(t), Length: l}, n + m, nil
}

// AppendFrameHeader appends a type/length prefix to buf and returns the
// number of bytes written.
func AppendFrameHeader(buf *bytes.Buffer, t FrameType, length uint64) int {
	b := quicvarint.Append(nil, uint64(t))
	b = quicvarint.Append(b, length)
	buf.Write(b)
	return len(b)
}

// HeaderLen returns the encoded size of a type/length prefix without
// materializing it. Used for size accounting before a frame is written.
func HeaderLen(t FrameType, length uint64) int {
	return quicvarint.Len(uint64(t)) + quicvarint.Len(length)
}

// AppendVarint appends one QUIC variable-length integer to buf.
func AppendVarint(buf *bytes.Buffer, v uint64) int {
	b := quicvarint.Append(nil, v)
	buf.Write(b)
	return len(b)
}

// ParseVarint decodes one varint from the front of b, returning the value and
// its encoded length. Incomplete input yields io.ErrUnexpectedEOF.
func ParseVarint(b []byte) (uint64, int, error) {
	v, n, err := quicvarint.Parse(b)
	if err != nil {
		return 0, 0, io.ErrUnexpectedEOF
	}
	return v, n, nil
}

// VarintLen returns the encoded size of v.
func VarintLen(v uint64) int {
	return quicvarint.Len(v)
}
