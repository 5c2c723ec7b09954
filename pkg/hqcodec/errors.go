package hqcodec

import (
	"fmt"

	"github.com/xkilldash9x/hqmux/pkg/hqframe"
)

// InvariantError reports a bug in the calling layer: operating on an
// unregistered stream, issuing a push ID in the wrong role, dispatching
// ingress without a selected stream. These never originate from the network
// and are delivered by panic, so a call site cannot accidentally handle one
// as a retryable condition.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "hqcodec invariant violation: " + e.Msg
}

// invariant panics with an *InvariantError when cond does not hold.
func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(&InvariantError{Msg: fmt.Sprintf(format, args...)})
	}
}

// ProtocolError is a peer-originated HTTP/3 violation. It carries the
// application error code the connection manager should surface on the
// transport. Unlike an InvariantError it is an ordinary error value.
type ProtocolError struct {
	Code   hqframe.ErrorCode
	Stream StreamID
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Stream == MaxStreamID {
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("%s on stream %d: %s", e.Code, e.Stream, e.Reason)
}

func newProtocolError(code hqframe.ErrorCode, stream StreamID, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Stream: stream, Reason: fmt.Sprintf(format, args...)}
}
