package hqcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/hqmux/pkg/hqframe"
)

func TestSettingsAccessors(t *testing.T) {
	s := NewSettings()
	assert.Zero(t, s.Len())

	_, ok := s.Get(hqframe.SettingMaxFieldSectionSize)
	assert.False(t, ok)
	assert.Equal(t, uint64(42), s.GetOr(hqframe.SettingMaxFieldSectionSize, 42))

	s.Set(hqframe.SettingMaxFieldSectionSize, 8192)
	v, ok := s.Get(hqframe.SettingMaxFieldSectionSize)
	require.True(t, ok)
	assert.Equal(t, uint64(8192), v)
	assert.Equal(t, uint64(8192), s.GetOr(hqframe.SettingMaxFieldSectionSize, 42))

	s.Set(hqframe.SettingMaxFieldSectionSize, 16384)
	assert.Equal(t, uint64(16384), s.GetOr(hqframe.SettingMaxFieldSectionSize, 0))
	assert.Equal(t, 1, s.Len())
}

func TestSettingsListOrder(t *testing.T) {
	s := NewSettings()
	s.Set(hqframe.SettingQPACKBlockedStreams, 3)
	s.Set(hqframe.SettingQPACKMaxTableCapacity, 1)
	s.Set(hqframe.SettingMaxFieldSectionSize, 2)

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, hqframe.SettingQPACKMaxTableCapacity, list[0].ID)
	assert.Equal(t, hqframe.SettingMaxFieldSectionSize, list[1].ID)
	assert.Equal(t, hqframe.SettingQPACKBlockedStreams, list[2].ID)
}

func TestSettingsApply(t *testing.T) {
	s := NewSettings()
	s.Set(hqframe.SettingMaxFieldSectionSize, 1)
	s.Apply([]hqframe.Setting{
		{ID: hqframe.SettingMaxFieldSectionSize, Value: 2},
		{ID: hqframe.SettingQPACKBlockedStreams, Value: 7},
	})
	assert.Equal(t, uint64(2), s.GetOr(hqframe.SettingMaxFieldSectionSize, 0))
	assert.Equal(t, uint64(7), s.GetOr(hqframe.SettingQPACKBlockedStreams, 0))
}

func TestDefaultEgressSettings(t *testing.T) {
	s := NewDefaultEgressSettings()
	assert.Equal(t, uint64(DefaultMaxFieldSectionSize), s.GetOr(hqframe.SettingMaxFieldSectionSize, 0))
	assert.Equal(t, uint64(0), s.GetOr(hqframe.SettingQPACKMaxTableCapacity, 99))
	assert.Equal(t, uint64(0), s.GetOr(hqframe.SettingQPACKBlockedStreams, 99))
}
