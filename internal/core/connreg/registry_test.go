package connreg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func mkPeer(b byte) meshnet.PeerId {
	var p meshnet.PeerId
	p[0] = b
	return p
}

func TestInsertRejectsSelfConnection(t *testing.T) {
	local := mkPeer(1)
	r := New(local)

	_, err := r.Insert(meshnet.ConnectionRecord{PeerId: local, RemoteEndpoint: meshnet.NewV4([]byte{1, 1, 1, 1}, 80)})
	require.ErrorIs(t, err, meshnet.ErrSelfConnection)
}

func TestInsertNewPeerSucceeds(t *testing.T) {
	r := New(mkPeer(0))
	peer := mkPeer(2)
	ep := meshnet.NewV4([]byte{1, 1, 1, 1}, 80)

	rec, err := r.Insert(meshnet.ConnectionRecord{PeerId: peer, RemoteEndpoint: ep})
	require.NoError(t, err)
	require.Equal(t, peer, rec.PeerId)

	got, ok := r.Lookup(peer)
	require.True(t, ok)
	require.Equal(t, ep, got.RemoteEndpoint)

	gotByEp, ok := r.LookupEndpoint(ep)
	require.True(t, ok)
	require.Equal(t, peer, gotByEp.PeerId)
}

func TestInsertVirtualThenRealReplaces(t *testing.T) {
	r := New(mkPeer(0))
	peer := mkPeer(3)
	ep := meshnet.NewV4([]byte{2, 2, 2, 2}, 80)

	_, err := r.Insert(meshnet.ConnectionRecord{PeerId: peer, RemoteEndpoint: ep, IsVirtual: true})
	require.NoError(t, err)

	rec, err := r.Insert(meshnet.ConnectionRecord{PeerId: peer, RemoteEndpoint: ep, IsVirtual: false})
	require.NoError(t, err)
	require.False(t, rec.IsVirtual)

	got, _ := r.Lookup(peer)
	require.False(t, got.IsVirtual)
}

func TestInsertRealThenVirtualKeepsReal(t *testing.T) {
	r := New(mkPeer(0))
	peer := mkPeer(4)
	ep := meshnet.NewV4([]byte{3, 3, 3, 3}, 80)

	_, err := r.Insert(meshnet.ConnectionRecord{PeerId: peer, RemoteEndpoint: ep, IsVirtual: false})
	require.NoError(t, err)

	existing, err := r.Insert(meshnet.ConnectionRecord{PeerId: peer, RemoteEndpoint: ep, IsVirtual: true})
	require.ErrorIs(t, err, meshnet.ErrDuplicateVirtual)
	require.False(t, existing.IsVirtual)
}

func TestAllowNewConnectionPublicSupersedesPrivate(t *testing.T) {
	privateEp := meshnet.NewV4([]byte{10, 0, 0, 5}, 80)
	publicEp := meshnet.NewV4([]byte{8, 8, 8, 8}, 80)
	require.True(t, AllowNewConnection(privateEp, publicEp))
}

func TestAllowNewConnectionRejectsFamilyMismatch(t *testing.T) {
	v4 := meshnet.NewV4([]byte{8, 8, 8, 8}, 80)
	v6 := meshnet.NewV6([]byte{0x20, 1, 0xd, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}, 80)
	require.False(t, AllowNewConnection(v4, v6))
}

func TestAllowNewConnectionRejectsWhenExistingAlreadyPublic(t *testing.T) {
	publicA := meshnet.NewV4([]byte{8, 8, 8, 8}, 80)
	publicB := meshnet.NewV4([]byte{9, 9, 9, 9}, 80)
	require.False(t, AllowNewConnection(publicA, publicB))
}

func TestInsertRealDuplicateDifferentEndpointAppliesAllowNewConnection(t *testing.T) {
	r := New(mkPeer(0))
	peer := mkPeer(5)
	privateEp := meshnet.NewV4([]byte{10, 0, 0, 9}, 80)
	publicEp := meshnet.NewV4([]byte{8, 8, 8, 8}, 80)

	_, err := r.Insert(meshnet.ConnectionRecord{PeerId: peer, RemoteEndpoint: privateEp})
	require.NoError(t, err)

	rec, err := r.Insert(meshnet.ConnectionRecord{PeerId: peer, RemoteEndpoint: publicEp})
	require.NoError(t, err)
	require.Equal(t, publicEp, rec.RemoteEndpoint)

	_, ok := r.LookupEndpoint(privateEp)
	require.False(t, ok, "the superseded private-endpoint record must be fully disposed")
}

func TestDisposeRemovesFromBothMapsAndRelayClients(t *testing.T) {
	r := New(mkPeer(0))
	peer := mkPeer(6)
	ep := meshnet.NewV4([]byte{4, 4, 4, 4}, 80)

	_, err := r.Insert(meshnet.ConnectionRecord{PeerId: peer, RemoteEndpoint: ep})
	require.NoError(t, err)
	require.True(t, r.MarkRelayClient(peer))
	require.Equal(t, 1, r.RelayClientCount())

	r.Dispose(peer)

	_, ok := r.Lookup(peer)
	require.False(t, ok)
	_, ok = r.LookupEndpoint(ep)
	require.False(t, ok)
	require.Equal(t, 0, r.RelayClientCount())
}

func TestMarkRelayClientCapsAtThree(t *testing.T) {
	r := New(mkPeer(0))
	for i := byte(1); i <= 3; i++ {
		require.True(t, r.MarkRelayClient(mkPeer(i)))
	}
	require.False(t, r.MarkRelayClient(mkPeer(4)))
	require.Equal(t, 3, r.RelayClientCount())
}
