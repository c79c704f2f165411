package wsc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNack(t *testing.T) {
	en := []byte("0123456789abcdef")
	body := BuildNack(en, nil, ConfigErrorSetupLocked)

	a, err := Parse(body)
	require.NoError(t, err)
	assert.Equal(t, MsgNack, a.MessageType)
	assert.True(t, a.HasConfigError)
	assert.Equal(t, ConfigErrorSetupLocked, a.ConfigError)
	assert.Equal(t, en, a.EnrolleeNonce)
	assert.Equal(t, make([]byte, 16), a.RegistrarNonce)
	assert.Equal(t, uint8(0x10), a.Version)
}

func TestParseBeaconAttributes(t *testing.T) {
	var e Encoder
	e.PutByte(AttrVersion, 0x10).
		PutByte(AttrWPSState, 2).
		PutByte(AttrAPSetupLocked, 1).
		PutByte(AttrSelectedRegistrar, 0).
		Put(AttrDeviceName, []byte("router"))

	a, err := Parse(e.Bytes())
	require.NoError(t, err)
	assert.True(t, a.APSetupLocked)
	assert.False(t, a.SelectedRegistrar)
	assert.Equal(t, uint8(2), a.WPSState)
	assert.Equal(t, "router", a.DeviceName)
	assert.Equal(t, MsgUnknown, a.MessageType)
}

func TestParseTruncated(t *testing.T) {
	var e Encoder
	e.PutByte(AttrMessageType, byte(MsgM3))
	data := append(e.Bytes(), 0x10, 0x09, 0x00, 0x02, 0x00)

	a, err := Parse(data)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, MsgM3, a.MessageType, "attributes before the bad one are kept")
	assert.False(t, a.HasConfigError)
}

func TestParseIgnoresMalformedLengths(t *testing.T) {
	var e Encoder
	e.Put(AttrMessageType, []byte{0x07, 0x00}).
		Put(AttrConfigError, []byte{0x01})

	a, err := Parse(e.Bytes())
	require.NoError(t, err)
	assert.Equal(t, MsgUnknown, a.MessageType)
	assert.False(t, a.HasConfigError)
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "M5", MsgM5.String())
	assert.Equal(t, "WSC_NACK", MsgNack.String())
	assert.Equal(t, "MSG(0x42)", MessageType(0x42).String())
}

func TestOpcodeFor(t *testing.T) {
	assert.Equal(t, OpNack, OpcodeFor(MsgNack))
	assert.Equal(t, OpDone, OpcodeFor(MsgDone))
	assert.Equal(t, OpMsg, OpcodeFor(MsgM4))
}

func TestUnavailableTracksNonces(t *testing.T) {
	var e Encoder
	e.PutByte(AttrMessageType, byte(MsgM1)).
		Put(AttrEnrolleeNonce, []byte("EEEEEEEEEEEEEEEE"))

	u := &Unavailable{}
	require.NoError(t, u.Process(MsgM1, e.Bytes()))
	en, reg := u.Nonces()
	assert.Equal(t, []byte("EEEEEEEEEEEEEEEE"), en)
	assert.Nil(t, reg)

	_, err := u.Build(MsgM2)
	assert.ErrorIs(t, err, ErrNoRegistrar)
}
