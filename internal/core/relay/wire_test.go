package relay

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := Frame{Type: MsgHostNetworkAck, Payload: nil}
	require.NoError(t, WriteFrame(&buf, f))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, f.Type, got.Type)
	assert.Empty(t, got.Payload)
}

func TestFrameRoundTripWithPayload(t *testing.T) {
	var buf bytes.Buffer
	f := Frame{Type: MsgTunnelReject, Payload: EncodeTunnelReject(TunnelRejectBusy)}
	require.NoError(t, WriteFrame(&buf, f))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	reason, err := DecodeTunnelReject(got.Payload)
	require.NoError(t, err)
	assert.Equal(t, TunnelRejectBusy, reason)
}

func TestNetworkIDRoundTrip160(t *testing.T) {
	var raw [20]byte
	raw[0] = 0xAB
	id := meshnet.NewNetworkId160(raw)
	encoded := EncodeNetworkID(id)
	decoded, rest, err := DecodeNetworkID(encoded)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.True(t, id.Equal(decoded))
}

func TestNetworkIDRoundTrip256(t *testing.T) {
	var raw [32]byte
	raw[31] = 0xCD
	id := meshnet.NewNetworkId256(raw)
	encoded := EncodeNetworkID(id)
	decoded, _, err := DecodeNetworkID(encoded)
	require.NoError(t, err)
	assert.True(t, id.Equal(decoded))
}

func TestTunnelRequestRoundTripWithoutNetworkID(t *testing.T) {
	var target meshnet.PeerId
	target[0] = 0x01
	encoded := EncodeTunnelRequest(target, nil)
	gotTarget, gotID, err := DecodeTunnelRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, target, gotTarget)
	assert.Nil(t, gotID)
}

func TestTunnelRequestRoundTripWithNetworkID(t *testing.T) {
	var target meshnet.PeerId
	target[0] = 0x02
	var raw [32]byte
	raw[0] = 0x09
	id := meshnet.NewNetworkId256(raw)

	encoded := EncodeTunnelRequest(target, &id)
	gotTarget, gotID, err := DecodeTunnelRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, target, gotTarget)
	require.NotNil(t, gotID)
	assert.True(t, id.Equal(*gotID))
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(MsgTunnelRequest))
	buf.WriteByte(0xFF)
	buf.WriteByte(0xFF)
	_, err := ReadFrame(&buf)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
