package coordinator

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/core/discovery/dht"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func newTestNode(kind meshnet.TransportKind) (*dht.Node, error) {
	return dht.NewNode(meshnet.NewV4([]byte{127, 0, 0, 1}, 0), kind)
}

func TestManagerAcceptInternetDhtConnectionUnsupportedFamily(t *testing.T) {
	ipv4Node, err := dht.NewNode(meshnet.NewV4(net.IPv4zero, 9000), meshnet.IPv4Internet)
	require.NoError(t, err)
	m := &Manager{ipv4: ipv4Node}

	domainEP := meshnet.NewDomain("nobody.onion", 80)
	err = m.AcceptInternetDhtConnection(nil, domainEP)
	require.ErrorIs(t, err, meshnet.ErrUnsupportedFamily)
}

func TestManagerBeginFindPeersLocalOnlySuppressesInternet(t *testing.T) {
	ipv4Node, err := newTestNode(meshnet.IPv4Internet)
	require.NoError(t, err)

	key := meshnet.NewNetworkId256([32]byte{1, 2, 3})
	rec := dht.PeerRecord{PeerId: meshnet.PeerId{9}, Endpoint: meshnet.NewV4([]byte{1, 1, 1, 1}, 80)}
	ipv4Node.StoreLocal(meshnet.DeriveKey(key), rec)

	m := &Manager{ipv4: ipv4Node}
	var results []FindResult
	err = m.BeginFindPeers(context.Background(), key, true, func(r FindResult) {
		results = append(results, r)
	})
	require.NoError(t, err)
	require.Empty(t, results, "localOnly must suppress the internet query")
}
