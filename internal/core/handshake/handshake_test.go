package handshake

import (
	"net"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/core/connreg"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func mkPeer(b byte) meshnet.PeerId {
	var p meshnet.PeerId
	p[0] = b
	return p
}

func TestHandshakeClientServerSucceeds(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	peerA := mkPeer(1)
	peerB := mkPeer(2)
	registryA := connreg.New(peerA)
	registryB := connreg.New(peerB)

	serverErrCh := make(chan error, 1)
	go func() {
		observedFromSocket := meshnet.NewV4([]byte{10, 0, 0, 1}, 54321) // ephemeral inbound port
		_, err := Accept(serverConn, observedFromSocket, Identity{PeerId: peerB, ServicePort: 9000},
			registryB, func(meshnet.Stream, meshnet.Endpoint) error { t.Errorf("unexpected demux"); return nil })
		serverErrCh <- err
	}()

	dialTarget := meshnet.NewV4([]byte{10, 0, 0, 1}, 9000)
	rec, err := Initiate(clientConn, Identity{PeerId: peerA, ServicePort: 9001}, dialTarget, false, registryA, clock.New())
	require.NoError(t, err)
	require.Equal(t, peerB, rec.PeerId)

	require.NoError(t, <-serverErrCh)

	gotA, ok := registryA.Lookup(peerB)
	require.True(t, ok)
	require.Equal(t, dialTarget, gotA.RemoteEndpoint)

	gotB, ok := registryB.Lookup(peerA)
	require.True(t, ok)
	// The server rewrites the observed ephemeral port to the remote's
	// advertised service port (spec §4.6 server step 3).
	require.Equal(t, uint16(9001), gotB.RemoteEndpoint.Port())
}

func TestHandshakeDemuxVersionDispatchesToDht(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	registryB := connreg.New(mkPeer(2))

	dispatched := make(chan struct{})
	go func() {
		observed := meshnet.NewV4([]byte{10, 0, 0, 1}, 1234)
		_, _ = Accept(serverConn, observed, Identity{PeerId: mkPeer(2), ServicePort: 9000}, registryB,
			func(meshnet.Stream, meshnet.Endpoint) error { close(dispatched); return nil })
	}()

	_, err := clientConn.Write([]byte{VersionDemux})
	require.NoError(t, err)
	<-dispatched
}

func TestHandshakeSelfConnectionRejected(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	self := mkPeer(5)
	registry := connreg.New(self)

	serverErrCh := make(chan error, 1)
	go func() {
		observed := meshnet.NewV4([]byte{10, 0, 0, 1}, 1234)
		_, err := Accept(serverConn, observed, Identity{PeerId: self, ServicePort: 9000}, registry,
			func(meshnet.Stream, meshnet.Endpoint) error { return nil })
		serverErrCh <- err
	}()

	dialTarget := meshnet.NewV4([]byte{10, 0, 0, 1}, 9000)
	_, err := Initiate(clientConn, Identity{PeerId: self, ServicePort: 9001}, dialTarget, false, registry, clock.New())
	require.Error(t, err)
	serverErr := <-serverErrCh
	require.ErrorIs(t, serverErr, meshnet.ErrSelfConnection)
}
