package hqcodec

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/quic-go/qpack"
	"golang.org/x/net/http/httpguts"
)

// Message is one HTTP message's header section: either a request
// (method/scheme/authority/path) or a response (status), plus its regular
// header fields. It is the unit GenerateHeader serializes and
// OnHeadersComplete delivers.
type Message struct {
	// Request pseudo-fields.
	Method    string
	Scheme    string
	Authority string
	Path      string

	// Response pseudo-field. Zero means this is a request.
	Status int

	Headers http.Header
}

// IsRequest reports whether the message carries request pseudo-headers.
func (m *Message) IsRequest() bool {
	return m.Status == 0
}

// headerFields serializes the message into a QPACK field section: pseudo
// fields first (RFC 9114 Section 4.3), then regular fields with lower-cased
// names. Connection-specific fields are rejected because HTTP/3 prohibits
// them (RFC 9114 Section 4.2).
func (m *Message) headerFields() ([]qpack.HeaderField, error) {
	fields := make([]qpack.HeaderField, 0, 4+len(m.Headers))
	if m.IsRequest() {
		if m.Method == "" {
			return nil, fmt.Errorf("request message without :method")
		}
		fields = append(fields, qpack.HeaderField{Name: ":method", Value: m.Method})
		if m.Method != http.MethodConnect {
			scheme := m.Scheme
			if scheme == "" {
				scheme = "https"
			}
			path := m.Path
			if path == "" {
				path = "/"
			}
			fields = append(fields, qpack.HeaderField{Name: ":scheme", Value: scheme})
			fields = append(fields, qpack.HeaderField{Name: ":path", Value: path})
		}
		if m.Authority != "" {
			fields = append(fields, qpack.HeaderField{Name: ":authority", Value: m.Authority})
		}
	} else {
		if m.Status < 100 || m.Status > 999 {
			return nil, fmt.Errorf("response message with invalid :status %d", m.Status)
		}
		fields = append(fields, qpack.HeaderField{Name: ":status", Value: strconv.Itoa(m.Status)})
	}

	regular, err := regularFields(m.Headers)
	if err != nil {
		return nil, err
	}
	return append(fields, regular...), nil
}

// regularFields converts an http.Header into lower-cased QPACK fields,
// validating names and values.
func regularFields(h http.Header) ([]qpack.HeaderField, error) {
	fields := make([]qpack.HeaderField, 0, len(h))
	for name, values := range h {
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("invalid header field name %q", name)
		}
		lower := strings.ToLower(name)
		if isConnectionSpecific(lower) {
			return nil, fmt.Errorf("connection-specific header field %q not allowed", name)
		}
		for _, v := range values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return nil, fmt.Errorf("invalid value for header field %q", name)
			}
			fields = append(fields, qpack.HeaderField{Name: lower, Value: v})
		}
	}
	return fields, nil
}

func isConnectionSpecific(lowerName string) bool {
	switch lowerName {
	case "connection", "keep-alive", "proxy-connection", "transfer-encoding", "upgrade":
		return true
	}
	return false
}

// messageFromFields reassembles a Message from a decoded field section,
// enforcing pseudo-header ordering and uniqueness.
func messageFromFields(fields []qpack.HeaderField) (*Message, error) {
	msg := &Message{Headers: make(http.Header)}
	sawRegular := false
	seenPseudo := make(map[string]struct{})
	for _, f := range fields {
		if strings.HasPrefix(f.Name, ":") {
			if sawRegular {
				return nil, fmt.Errorf("pseudo-header %q after regular field", f.Name)
			}
			if _, dup := seenPseudo[f.Name]; dup {
				return nil, fmt.Errorf("duplicate pseudo-header %q", f.Name)
			}
			seenPseudo[f.Name] = struct{}{}
			switch f.Name {
			case ":method":
				msg.Method = f.Value
			case ":scheme":
				msg.Scheme = f.Value
			case ":authority":
				msg.Authority = f.Value
			case ":path":
				msg.Path = f.Value
			case ":status":
				status, err := strconv.Atoi(f.Value)
				if err != nil {
					return nil, fmt.Errorf("malformed :status %q", f.Value)
				}
				msg.Status = status
			default:
				return nil, fmt.Errorf("unknown pseudo-header %q", f.Name)
			}
			continue
		}
		sawRegular = true
		msg.Headers.Add(f.Name, f.Value)
	}

	if msg.Status == 0 && msg.Method == "" {
		return nil, fmt.Errorf("field section carries neither :method nor :status")
	}
	if msg.Status != 0 && msg.Method != "" {
		return nil, fmt.Errorf("field section mixes request and response pseudo-headers")
	}
	return msg, nil
}

// trailerFromFields reassembles trailers, which must not contain
// pseudo-headers.
func trailerFromFields(fields []qpack.HeaderField) (http.Header, error) {
	trailers := make(http.Header, len(fields))
	for _, f := range fields {
		if strings.HasPrefix(f.Name, ":") {
			return nil, fmt.Errorf("pseudo-header %q in trailers", f.Name)
		}
		trailers.Add(f.Name, f.Value)
	}
	return trailers, nil
}
