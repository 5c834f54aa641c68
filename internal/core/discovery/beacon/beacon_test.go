package beacon

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for port := 0; port < 65536; port += 997 {
		p := uint16(port)
		got, err := Decode(Encode(p))
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
	// Exercise the boundary explicitly.
	for _, p := range []uint16{0, 1, 65534, 65535} {
		got, err := Decode(Encode(p))
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	pkt := Encode(41988)
	pkt[0] = 2
	_, err := Decode(pkt)
	require.Error(t, err)
	require.True(t, errors.Is(err, meshnet.ErrUnsupportedBeaconVersion))
}

func TestDecodeRejectsShortPacket(t *testing.T) {
	_, err := Decode([]byte{1, 2})
	require.True(t, errors.Is(err, ErrShortPacket))
}
