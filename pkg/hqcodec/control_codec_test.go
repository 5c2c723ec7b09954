package hqcodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/hqmux/pkg/hqframe"
)

func newTestControlCodec(t *testing.T, direction TransportDirection) (*ControlCodec, *recordingCallback) {
	t.Helper()
	cc := NewControlCodec(direction, zaptest.NewLogger(t))
	cb := &recordingCallback{}
	cc.SetCallback(cb)
	return cc, cb
}

func appendSettingsFrame(buf *bytes.Buffer, settings []hqframe.Setting) {
	hqframe.AppendFrameHeader(buf, hqframe.FrameSettings, hqframe.SettingsPayloadLen(settings))
	hqframe.AppendSettingsPayload(buf, settings)
}

func appendVarintFrame(buf *bytes.Buffer, t hqframe.FrameType, v uint64) {
	hqframe.AppendFrameHeader(buf, t, uint64(hqframe.VarintLen(v)))
	hqframe.AppendVarint(buf, v)
}

func TestControlCodecSettingsRoundtrip(t *testing.T) {
	sender := NewControlCodec(DirectionUpstream, zaptest.NewLogger(t))
	sender.EgressSettings().Set(hqframe.SettingMaxFieldSectionSize, 1<<14)

	var wire bytes.Buffer
	n, err := sender.GenerateSettings(&wire)
	require.NoError(t, err)
	assert.Equal(t, wire.Len(), n)

	receiver, cb := newTestControlCodec(t, DirectionDownstream)
	_, err = receiver.OnIngress(wire.Bytes())
	require.NoError(t, err)

	got, ok := receiver.IngressSettings().Get(hqframe.SettingMaxFieldSectionSize)
	require.True(t, ok)
	assert.Equal(t, uint64(1<<14), got)
	require.NotNil(t, cb.find("settings"))
	assert.Len(t, cb.find("settings").settings, sender.EgressSettings().Len())
}

func TestControlCodecSettingsMustComeFirst(t *testing.T) {
	cc, _ := newTestControlCodec(t, DirectionUpstream)

	var buf bytes.Buffer
	appendVarintFrame(&buf, hqframe.FrameGoaway, 0)

	_, err := cc.OnIngress(buf.Bytes())
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, hqframe.ErrCodeMissingSettings, protoErr.Code)
}

func TestControlCodecReservedFrameBeforeSettings(t *testing.T) {
	// Greased frames may precede SETTINGS without tripping the first-frame rule.
	cc, cb := newTestControlCodec(t, DirectionUpstream)

	var buf bytes.Buffer
	hqframe.AppendFrameHeader(&buf, hqframe.FrameType(0x21), 3)
	buf.Write([]byte{1, 2, 3})
	appendSettingsFrame(&buf, nil)

	_, err := cc.OnIngress(buf.Bytes())
	require.NoError(t, err)
	require.NotNil(t, cb.find("settings"))
}

func TestControlCodecRepeatedSettings(t *testing.T) {
	cc, _ := newTestControlCodec(t, DirectionUpstream)

	var buf bytes.Buffer
	appendSettingsFrame(&buf, nil)
	appendSettingsFrame(&buf, nil)

	_, err := cc.OnIngress(buf.Bytes())
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, hqframe.ErrCodeFrameUnexpected, protoErr.Code)
}

func TestControlCodecGoawayIngress(t *testing.T) {
	cc, cb := newTestControlCodec(t, DirectionUpstream)

	var buf bytes.Buffer
	appendSettingsFrame(&buf, nil)
	appendVarintFrame(&buf, hqframe.FrameGoaway, 100)
	appendVarintFrame(&buf, hqframe.FrameGoaway, 96) // shrinking is allowed

	_, err := cc.OnIngress(buf.Bytes())
	require.NoError(t, err)
	assert.True(t, cc.ReceivedGoaway())
	goaways := []uint64{}
	for _, ev := range cb.events {
		if ev.kind == "goaway" {
			goaways = append(goaways, ev.value)
		}
	}
	assert.Equal(t, []uint64{100, 96}, goaways)

	// A later GOAWAY naming a larger identifier is a connection error.
	var grow bytes.Buffer
	appendVarintFrame(&grow, hqframe.FrameGoaway, 104)
	_, err = cc.OnIngress(grow.Bytes())
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, hqframe.ErrCodeIDError, protoErr.Code)
}

func TestControlCodecGenerateGoawayMonotonicity(t *testing.T) {
	cc, _ := newTestControlCodec(t, DirectionDownstream)
	assert.True(t, cc.IsReusable())

	var wire bytes.Buffer
	_, err := cc.GenerateGoaway(&wire, 200)
	require.NoError(t, err)
	assert.True(t, cc.SentGoaway())
	assert.False(t, cc.IsReusable())

	_, err = cc.GenerateGoaway(&wire, 196)
	require.NoError(t, err)

	_, err = cc.GenerateGoaway(&wire, 204)
	require.Error(t, err, "GOAWAY identifier must not grow")
}

func TestControlCodecMaxPushIDRoles(t *testing.T) {
	t.Run("downstream accepts MAX_PUSH_ID", func(t *testing.T) {
		cc, cb := newTestControlCodec(t, DirectionDownstream)
		var buf bytes.Buffer
		appendSettingsFrame(&buf, nil)
		appendVarintFrame(&buf, hqframe.FrameMaxPushID, 50)
		_, err := cc.OnIngress(buf.Bytes())
		require.NoError(t, err)
		require.NotNil(t, cb.find("maxPushID"))
		assert.Equal(t, uint64(50), cb.find("maxPushID").value)
	})

	t.Run("upstream rejects MAX_PUSH_ID", func(t *testing.T) {
		cc, _ := newTestControlCodec(t, DirectionUpstream)
		var buf bytes.Buffer
		appendSettingsFrame(&buf, nil)
		appendVarintFrame(&buf, hqframe.FrameMaxPushID, 50)
		_, err := cc.OnIngress(buf.Bytes())
		var protoErr *ProtocolError
		require.ErrorAs(t, err, &protoErr)
		assert.Equal(t, hqframe.ErrCodeFrameUnexpected, protoErr.Code)
	})

	t.Run("only upstream generates MAX_PUSH_ID", func(t *testing.T) {
		var wire bytes.Buffer
		up, _ := newTestControlCodec(t, DirectionUpstream)
		_, err := up.GenerateMaxPushID(&wire, 10)
		require.NoError(t, err)

		down, _ := newTestControlCodec(t, DirectionDownstream)
		assert.Panics(t, func() { down.GenerateMaxPushID(&wire, 10) })
	})
}

func TestControlCodecCancelPushRoundtrip(t *testing.T) {
	sender := NewControlCodec(DirectionDownstream, zaptest.NewLogger(t))
	var wire bytes.Buffer
	_, err := sender.GenerateSettings(&wire)
	require.NoError(t, err)
	_, err = sender.GenerateCancelPush(&wire, 9)
	require.NoError(t, err)

	receiver, cb := newTestControlCodec(t, DirectionUpstream)
	_, err = receiver.OnIngress(wire.Bytes())
	require.NoError(t, err)
	require.NotNil(t, cb.find("cancelPush"))
	assert.Equal(t, uint64(9), cb.find("cancelPush").pushID)
}

func TestControlCodecRequestFramesRejected(t *testing.T) {
	for _, ft := range []hqframe.FrameType{hqframe.FrameData, hqframe.FrameHeaders, hqframe.FramePushPromise} {
		t.Run(ft.String(), func(t *testing.T) {
			cc, _ := newTestControlCodec(t, DirectionUpstream)
			var buf bytes.Buffer
			appendSettingsFrame(&buf, nil)
			hqframe.AppendFrameHeader(&buf, ft, 1)
			buf.WriteByte(0)
			_, err := cc.OnIngress(buf.Bytes())
			var protoErr *ProtocolError
			require.ErrorAs(t, err, &protoErr)
			assert.Equal(t, hqframe.ErrCodeFrameUnexpected, protoErr.Code)
		})
	}
}

func TestControlCodecOversizedKnownFrame(t *testing.T) {
	// A known control frame announcing an absurd payload fails on its
	// header alone, before any of the payload is buffered.
	cc, _ := newTestControlCodec(t, DirectionUpstream)

	var buf bytes.Buffer
	appendSettingsFrame(&buf, nil)
	hqframe.AppendFrameHeader(&buf, hqframe.FrameGoaway, 1<<20)

	_, err := cc.OnIngress(buf.Bytes())
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, hqframe.ErrCodeExcessiveLoad, protoErr.Code)
}

func TestControlCodecSkippedFrameNotBuffered(t *testing.T) {
	// An unknown frame's payload is discarded as it arrives, however large
	// the announced length.
	cc, cb := newTestControlCodec(t, DirectionUpstream)

	var buf bytes.Buffer
	appendSettingsFrame(&buf, nil)
	hqframe.AppendFrameHeader(&buf, hqframe.FrameType(0x2a), 1<<30)
	_, err := cc.OnIngress(buf.Bytes())
	require.NoError(t, err)

	chunk := make([]byte, 64<<10)
	for i := 0; i < 4; i++ {
		_, err = cc.OnIngress(chunk)
		require.NoError(t, err)
		assert.Zero(t, cc.pending.Len(), "skipped payload must not accumulate")
	}
	require.NotNil(t, cb.find("settings"))
}

func TestControlCodecIncrementalDelivery(t *testing.T) {
	cc, cb := newTestControlCodec(t, DirectionUpstream)

	var buf bytes.Buffer
	appendSettingsFrame(&buf, []hqframe.Setting{{ID: hqframe.SettingMaxFieldSectionSize, Value: 4096}})
	appendVarintFrame(&buf, hqframe.FrameGoaway, 12)

	for _, b := range buf.Bytes() {
		n, err := cc.OnIngress([]byte{b})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	require.NotNil(t, cb.find("settings"))
	require.NotNil(t, cb.find("goaway"))
	assert.Equal(t, uint64(12), cb.find("goaway").value)
}

func TestControlCodecControlStreamIdentity(t *testing.T) {
	cc := NewControlCodec(DirectionUpstream, zaptest.NewLogger(t))
	assert.Equal(t, MaxStreamID, cc.ControlStreamID())
	cc.SetControlStreamID(3)
	assert.Equal(t, StreamID(3), cc.ControlStreamID())
}
