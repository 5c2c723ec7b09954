package hqcodec

import (
	"sort"

	"github.com/xkilldash9x/hqmux/pkg/hqframe"
)

// Default egress settings advertised when the caller configures nothing.
// This implementation keeps the QPACK dynamic table disabled, matching the
// encoder it ships with.
const (
	DefaultMaxFieldSectionSize = 64 * 1024
)

// Settings is one direction's HTTP/3 settings. Each connection holds two
// independent instances: the ingress settings received from the peer and the
// egress settings to be sent. Per-stream codecs snapshot the egress values at
// construction; later changes do not retroactively affect them.
type Settings struct {
	values map[hqframe.SettingID]uint64
}

// NewSettings returns an empty settings instance.
func NewSettings() *Settings {
	return &Settings{values: make(map[hqframe.SettingID]uint64)}
}

// NewDefaultEgressSettings returns the settings this codec advertises by
// default.
func NewDefaultEgressSettings() *Settings {
	s := NewSettings()
	s.Set(hqframe.SettingMaxFieldSectionSize, DefaultMaxFieldSectionSize)
	s.Set(hqframe.SettingQPACKMaxTableCapacity, 0)
	s.Set(hqframe.SettingQPACKBlockedStreams, 0)
	return s
}

// Set stores or replaces one setting.
func (s *Settings) Set(id hqframe.SettingID, value uint64) {
	s.values[id] = value
}

// Get returns the stored value for id.
func (s *Settings) Get(id hqframe.SettingID) (uint64, bool) {
	v, ok := s.values[id]
	return v, ok
}

// GetOr returns the stored value for id, or def when unset.
func (s *Settings) GetOr(id hqframe.SettingID, def uint64) uint64 {
	if v, ok := s.values[id]; ok {
		return v
	}
	return def
}

// Len returns the number of stored settings.
func (s *Settings) Len() int {
	return len(s.values)
}

// List returns the settings in ascending identifier order, the order they
// are serialized in.
func (s *Settings) List() []hqframe.Setting {
	out := make([]hqframe.Setting, 0, len(s.values))
	for id, v := range s.values {
		out = append(out, hqframe.Setting{ID: id, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Apply stores every setting in list, replacing existing values.
func (s *Settings) Apply(list []hqframe.Setting) {
	for _, st := range list {
		s.values[st.ID] = st.Value
	}
}
