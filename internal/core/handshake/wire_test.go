package handshake

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func TestHelloRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	id := Identity{PeerId: meshnet.PeerId{1, 2, 3}, ServicePort: 9001}
	require.NoError(t, WriteHello(&buf, id))

	version, err := ReadVersion(&buf)
	require.NoError(t, err)
	require.Equal(t, VersionPeer, version)

	got, err := ReadPeerHello(&buf)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	local := meshnet.PeerId{9, 9, 9}
	require.NoError(t, WriteResponse(&buf, ResponseAccept, local))

	code, remote, err := ReadResponse(&buf)
	require.NoError(t, err)
	require.Equal(t, ResponseAccept, code)
	require.Equal(t, local, remote)
}

func TestRewritePortPreservesFamily(t *testing.T) {
	v4 := meshnet.NewV4([]byte{1, 2, 3, 4}, 1)
	rewritten := rewritePort(v4, 9000)
	require.Equal(t, meshnet.AddrV4, rewritten.Family())
	require.Equal(t, uint16(9000), rewritten.Port())
	require.True(t, rewritten.IP().Equal(v4.IP()))
}
