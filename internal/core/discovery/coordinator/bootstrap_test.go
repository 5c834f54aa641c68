package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func TestBootstrapBlobRoundTrip(t *testing.T) {
	eps := []meshnet.Endpoint{
		meshnet.NewV4([]byte{1, 2, 3, 4}, 9000),
		meshnet.NewV6([]byte{
			0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1,
		}, 9001),
		meshnet.NewDomain("abcdefghij1234567890.onion", 9002),
	}

	blob := EncodeBootstrapBlob(eps)
	decoded, err := DecodeBootstrapBlob(blob)
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	for i, ep := range eps {
		require.True(t, ep.Equal(decoded[i]), "endpoint %d mismatch: %s != %s", i, ep, decoded[i])
	}
}

func TestBootstrapBlobDispatchByFamily(t *testing.T) {
	// A blob with one endpoint per family adds each endpoint to its
	// family's DHT node and no others, regardless of order (spec §8
	// scenario 6).
	ipv4Node, err := newTestNode(meshnet.IPv4Internet)
	require.NoError(t, err)
	ipv6Node, err := newTestNode(meshnet.IPv6Internet)
	require.NoError(t, err)
	overlayNode, err := newTestNode(meshnet.AnonymityOverlay)
	require.NoError(t, err)

	m := &Manager{ipv4: ipv4Node, ipv6: ipv6Node, overlay: overlayNode}

	onionEP := meshnet.NewDomain("xyz.onion", 80)
	v6EP := meshnet.NewV6([]byte{
		0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2,
	}, 443)
	v4EP := meshnet.NewV4([]byte{9, 9, 9, 9}, 443)

	m.dispatchBootstrapEndpoints([]meshnet.Endpoint{v4EP, v6EP, onionEP})

	require.Equal(t, 1, ipv4Node.Count())
	require.Equal(t, 1, ipv6Node.Count())
	require.Equal(t, 1, overlayNode.Count())
}

func TestDecodeBootstrapBlobTooShort(t *testing.T) {
	_, err := DecodeBootstrapBlob(nil)
	require.ErrorIs(t, err, ErrBootstrapBlobTooShort)

	_, err = DecodeBootstrapBlob([]byte{1}) // claims one endpoint, carries none
	require.ErrorIs(t, err, ErrBootstrapBlobTooShort)
}
