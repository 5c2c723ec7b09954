// Package hqcodec implements the HTTP/3 codec layer that sits between a
// connection manager and the transport's streams: a multiplexing codec that
// routes ingress bytes and egress frame generation to per-stream codecs while
// sharing a single QPACK context across all of them.
package hqcodec

import "math"

// StreamID identifies one transport stream within a multiplexed connection.
// The two low-order bits partition the ID space into four classes (RFC 9000
// Section 2.1).
type StreamID uint64

// MaxStreamID is the "no stream selected" sentinel. It is distinguishable
// from every real stream identity, which are capped at 2^62-1 by the varint
// encoding.
const MaxStreamID StreamID = math.MaxUint64

// StreamClass is the initiator/directionality class of a stream identity.
type StreamClass uint8

const (
	ClassClientBidi StreamClass = iota // client-initiated bidirectional
	ClassServerBidi                    // server-initiated bidirectional
	ClassClientUni                     // client-initiated unidirectional
	ClassServerUni                     // server-initiated unidirectional
)

// streamClassStride is the numbering stride within one class.
const streamClassStride = 4

// Class returns the stream's class, derived from its low-order bits.
func (id StreamID) Class() StreamClass {
	return StreamClass(id & 0x3)
}

// IsClientBidi reports whether id carries a client-initiated request/response
// exchange. The stream-ID high-water mark applies only to this class.
func (id StreamID) IsClientBidi() bool {
	return id.Class() == ClassClientBidi
}

func (c StreamClass) String() string {
	switch c {
	case ClassClientBidi:
		return "client-bidi"
	case ClassServerBidi:
		return "server-bidi"
	case ClassClientUni:
		return "client-uni"
	default:
		return "server-uni"
	}
}

// TransportDirection is the connection's role, fixed at construction.
type TransportDirection uint8

const (
	// DirectionUpstream is the content-consuming (client) side.
	DirectionUpstream TransportDirection = iota
	// DirectionDownstream is the content-producing (server) side. Push-ID
	// issuance and the stream-ID high-water mark are downstream-only.
	DirectionDownstream
)

func (d TransportDirection) String() string {
	if d == DirectionUpstream {
		return "upstream"
	}
	return "downstream"
}
