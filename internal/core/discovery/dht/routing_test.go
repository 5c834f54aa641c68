package dht

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func TestNodeInsertAndRandomNode(t *testing.T) {
	bind := meshnet.NewV4([]byte{10, 0, 0, 1}, 9000)
	n, err := NewNode(bind, meshnet.LocalNetwork)
	require.NoError(t, err)

	require.Equal(t, 0, n.Count())
	n.Insert(mkPeerId(1), meshnet.NewV4([]byte{10, 0, 0, 2}, 9001))
	require.Equal(t, 1, n.Count())

	rec, ok := n.RandomNode()
	require.True(t, ok)
	require.Equal(t, mkPeerId(1), rec.PeerId)

	n.Remove(mkPeerId(1))
	require.Equal(t, 0, n.Count())
}

func TestNodeStoreAndFindLocal(t *testing.T) {
	bind := meshnet.NewV4([]byte{10, 0, 0, 1}, 9000)
	n, err := NewNode(bind, meshnet.IPv4Internet)
	require.NoError(t, err)

	key := meshnet.NodeId{1, 2, 3}
	self := PeerRecord{PeerId: mkPeerId(5), Endpoint: meshnet.NewV4([]byte{1, 1, 1, 1}, 80)}
	n.StoreLocal(key, self)

	found := n.FindLocal(key)
	require.Len(t, found, 1)
	require.Equal(t, self.PeerId, found[0].PeerId)

	require.Empty(t, n.FindLocal(meshnet.NodeId{9, 9, 9}))
}

func TestNodeIdDerivedFromBind(t *testing.T) {
	bindA := meshnet.NewV4([]byte{10, 0, 0, 1}, 9000)
	bindB := meshnet.NewV4([]byte{10, 0, 0, 2}, 9000)

	nA1, _ := NewNode(bindA, meshnet.LocalNetwork)
	nA2, _ := NewNode(bindA, meshnet.LocalNetwork)
	nB, _ := NewNode(bindB, meshnet.LocalNetwork)

	require.Equal(t, nA1.NodeId(), nA2.NodeId())
	require.NotEqual(t, nA1.NodeId(), nB.NodeId())
}
