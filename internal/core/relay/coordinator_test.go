package relay

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/meshnet-io/meshconn/internal/core/connreg"
	"github.com/meshnet-io/meshconn/internal/core/discovery/dht"
	"github.com/meshnet-io/meshconn/internal/core/handshake"
	"github.com/meshnet-io/meshconn/internal/core/transport"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func mkPeer(b byte) meshnet.PeerId {
	var id meshnet.PeerId
	id[0] = b
	return id
}

func newTestCoordinator(t *testing.T) (*Coordinator, *connreg.Registry) {
	registry := connreg.New(mkPeer(0))
	tr := transport.New(transport.Config{})
	c, err := New(Config{}, handshake.Identity{PeerId: mkPeer(1), ServicePort: 9000}, registry, tr, clock.NewMock(), nil, nil)
	require.NoError(t, err)
	return c, registry
}

func TestHandleHostNetworkRequestRegistersAndAcks(t *testing.T) {
	c, registry := newTestCoordinator(t)

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	peer := mkPeer(2)
	rec := &meshnet.ConnectionRecord{PeerId: peer, Stream: a}
	registry.Insert(*rec)

	var raw [20]byte
	raw[0] = 0x01
	networkID := meshnet.NewNetworkId160(raw)

	errCh := make(chan error, 1)
	go func() { errCh <- c.handleHostNetworkRequest(rec, EncodeNetworkID(networkID)) }()

	f, err := ReadFrame(b)
	require.NoError(t, err)
	assert.Equal(t, MsgHostNetworkAck, f.Type)
	require.NoError(t, <-errCh)

	c.mu.Lock()
	_, hosting := c.hosted[networkKeyString(networkID)][peer]
	c.mu.Unlock()
	assert.True(t, hosting)
}

func TestOnDisposeWithdrawsHostedNetwork(t *testing.T) {
	c, registry := newTestCoordinator(t)
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	go io.Copy(io.Discard, b)

	peer := mkPeer(3)
	rec := &meshnet.ConnectionRecord{PeerId: peer, Stream: a}
	registry.Insert(*rec)

	var raw [20]byte
	networkID := meshnet.NewNetworkId160(raw)
	require.NoError(t, c.handleHostNetworkRequest(rec, EncodeNetworkID(networkID)))

	c.OnDispose(peer)

	c.mu.Lock()
	_, hosting := c.hosted[networkKeyString(networkID)][peer]
	_, reverse := c.byPeer[peer]
	c.mu.Unlock()
	assert.False(t, hosting)
	assert.False(t, reverse)
}

func TestHandleTunnelRequestNoRouteRejects(t *testing.T) {
	c, _ := newTestCoordinator(t)
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	requester := &meshnet.ConnectionRecord{PeerId: mkPeer(4), Stream: a}
	target := mkPeer(5)

	errCh := make(chan error, 1)
	go func() { errCh <- c.handleTunnelRequest(requester, EncodeTunnelRequest(target, nil)) }()

	f, err := ReadFrame(b)
	require.NoError(t, err)
	assert.Equal(t, MsgTunnelReject, f.Type)
	reason, err := DecodeTunnelReject(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, TunnelRejectNoRoute, reason)
	require.NoError(t, <-errCh)
}

func TestHandleTunnelRequestAcceptsAndPumpsBytes(t *testing.T) {
	c, registry := newTestCoordinator(t)

	requesterLocal, requesterRemote := net.Pipe()
	defer requesterLocal.Close()
	defer requesterRemote.Close()

	targetLocal, targetRemote := net.Pipe()
	defer targetLocal.Close()
	defer targetRemote.Close()

	target := mkPeer(6)
	registry.Insert(meshnet.ConnectionRecord{PeerId: target, Stream: targetLocal})

	requester := &meshnet.ConnectionRecord{PeerId: mkPeer(7), Stream: requesterLocal}

	errCh := make(chan error, 1)
	go func() { errCh <- c.handleTunnelRequest(requester, EncodeTunnelRequest(target, nil)) }()

	f, err := ReadFrame(requesterRemote)
	require.NoError(t, err)
	assert.Equal(t, MsgTunnelAccept, f.Type)
	require.NoError(t, <-errCh)

	go requesterRemote.Write([]byte("hello"))
	buf := make([]byte, 5)
	targetRemote.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := io.ReadFull(targetRemote, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestDialVirtualReturnsErrOnReject(t *testing.T) {
	relayLocal, relayRemote := net.Pipe()
	defer relayLocal.Close()
	defer relayRemote.Close()

	go func() {
		f, err := ReadFrame(relayRemote)
		if err != nil || f.Type != MsgTunnelRequest {
			return
		}
		WriteFrame(relayRemote, Frame{Type: MsgTunnelReject, Payload: EncodeTunnelReject(TunnelRejectBusy)})
	}()

	registry := connreg.New(mkPeer(0))
	_, err := DialVirtual(relayLocal, mkPeer(8), nil, handshake.Identity{PeerId: mkPeer(1)}, meshnet.Endpoint{}, registry, clock.NewMock())
	assert.ErrorIs(t, err, ErrTunnelRejected)
}

func TestFillOnceSamplesFromSourceWhenPoolEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	ep := meshnet.NewV4(addr.IP, uint16(addr.Port))
	peer := mkPeer(9)

	source := NewMockPeerSource(ctrl)
	source.EXPECT().RandomNode().Return(dht.PeerRecord{PeerId: peer, Endpoint: ep}, true)

	registry := connreg.New(mkPeer(0))
	tr := transport.New(transport.Config{})
	c, err := New(Config{MaxRelayClients: 1}, handshake.Identity{PeerId: mkPeer(1), ServicePort: 9000}, registry, tr, clock.NewMock(), source, nil)
	require.NoError(t, err)

	c.fillOnce(context.Background())

	// The listener closes every connection, so the decoy handshake fails
	// and the candidate sampled from the source is evicted again.
	_, ok := c.pool.endpointFor(peer)
	assert.False(t, ok)
}

func TestFillOnceSkipsWhenAtCapacity(t *testing.T) {
	c, registry := newTestCoordinator(t)
	for i := byte(1); i <= 3; i++ {
		registry.MarkRelayClient(mkPeer(i))
	}
	// fillOnce should return immediately without touching the (nil) source.
	c.fillOnce(context.Background())
	assert.Equal(t, 3, registry.RelayClientCount())
}
