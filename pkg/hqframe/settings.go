package hqframe

import (
	"bytes"
	"fmt"
	"io"
)

// SettingID identifies one HTTP/3 setting (RFC 9114 Section 7.2.4.1 and
// RFC 9204 Section 5).
type SettingID uint64

const (
	SettingQPACKMaxTableCapacity SettingID = 0x1
	SettingMaxFieldSectionSize   SettingID = 0x6
	SettingQPACKBlockedStreams   SettingID = 0x7
)

// Setting is one identifier/value pair within a SETTINGS frame payload.
type Setting struct {
	ID    SettingID
	Value uint64
}

// AppendSettingsPayload serializes settings as a SETTINGS frame payload
// (without the frame header) and returns the number of bytes written.
func AppendSettingsPayload(buf *bytes.Buffer, settings []Setting) int {
	n := 0
	for _, s := range settings {
		n += AppendVarint(buf, uint64(s.ID))
		n += AppendVarint(buf, s.Value)
	}
	return n
}

// SettingsPayloadLen returns the serialized size of settings.
func SettingsPayloadLen(settings []Setting) uint64 {
	var n uint64
	for _, s := range settings {
		n += uint64(VarintLen(uint64(s.ID)) + VarintLen(s.Value))
	}
	return n
}

// ParseSettingsPayload decodes a complete SETTINGS frame payload. Unknown
// identifiers are preserved; duplicates are a settings error (RFC 9114
// Section 7.2.4).
func ParseSettingsPayload(payload []byte) ([]Setting, error) {
	var settings []Setting
	seen := make(map[SettingID]struct{})
	for len(payload) > 0 {
		id, n, err := ParseVarint(payload)
		if err != nil {
			return nil, fmt.Errorf("truncated setting identifier: %w", io.ErrUnexpectedEOF)
		}
		payload = payload[n:]
		val, n, err := ParseVarint(payload)
		if err != nil {
			return nil, fmt.Errorf("truncated setting value: %w", io.ErrUnexpectedEOF)
		}
		payload = payload[n:]
		sid := SettingID(id)
		if _, dup := seen[sid]; dup {
			return nil, fmt.Errorf("duplicate setting 0x%x", id)
		}
		seen[sid] = struct{}{}
		settings = append(settings, Setting{ID: sid, Value: val})
	}
	return settings, nil
}
