package meshconn

import (
	"context"
	"errors"
	"net"

	"github.com/benbjohnson/clock"

	"github.com/meshnet-io/meshconn/internal/core/connreg"
	"github.com/meshnet-io/meshconn/internal/core/discovery/dht"
	"github.com/meshnet-io/meshconn/internal/core/discovery/localdht"
	"github.com/meshnet-io/meshconn/internal/core/handshake"
	"github.com/meshnet-io/meshconn/internal/core/transport"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

const localDialCoalesceTimeout = transport.TimeoutLAN

// acceptLoop dispatches every inbound internet connection through the
// HTTP decoy and the connection-initiate protocol (spec §4.1, §4.6).
func (n *Node) acceptLoop(ln *transport.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, meshnet.ErrDisposed) {
				return
			}
			logger.Debug("accept failed", "err", err)
			continue
		}
		go n.handleInboundConn(conn)
	}
}

func (n *Node) handleInboundConn(conn net.Conn) {
	stream, err := transport.WrapHTTPDecoy(conn, transport.RoleServer)
	if err != nil {
		logger.Debug("decoy handshake failed", "err", err)
		conn.Close()
		return
	}

	remote := observedEndpointFromConn(conn, familyOfConn(conn))
	rec, err := handshake.Accept(stream, remote, n.identity, n.registry, n.dht.AcceptInternetDhtConnection)
	if err != nil {
		logger.Debug("inbound handshake failed", "remote", remote.String(), "err", err)
		return
	}
	if rec != nil {
		go n.relayCoord.ServeControlFrames(rec)
	}
}

// pumpLocalDiscovered drains one local-network manager's beacon-derived
// candidates and dials each through the connection-initiate protocol,
// coalescing concurrent dials to the same endpoint via the "real"
// in-flight set (spec §4.6). This loop, not the coordinator package
// itself, is the external caller localdht.Manager's doc comments call
// for (see DESIGN.md).
func pumpLocalDiscovered(lm *localdht.Manager, local handshake.Identity, registry *connreg.Registry, t *transport.Transport, inflight *connreg.InFlightSet, clk clock.Clock, binder *relayBinder) {
	for ep := range lm.DiscoveredEndpoints() {
		ep := ep
		go func() {
			rec, err := connreg.Coordinate(
				context.Background(), inflight, clk, localDialCoalesceTimeout, ep,
				func() (*meshnet.ConnectionRecord, error) { return dialLocalPeer(t, local, ep, registry, clk) },
				func() (*meshnet.ConnectionRecord, bool) { return registry.LookupEndpoint(ep) },
			)
			if err != nil {
				logger.Debug("local discovery dial failed", "endpoint", ep.String(), "err", err)
				return
			}
			go binder.serve(rec)
			lm.NotifyPeerIdentified(rec.PeerId, ep)
		}()
	}
}

func dialLocalPeer(t *transport.Transport, local handshake.Identity, ep meshnet.Endpoint, registry *connreg.Registry, clk clock.Clock) (*meshnet.ConnectionRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), transport.TimeoutLAN)
	defer cancel()

	conn, err := t.Connect(ctx, ep, meshnet.LocalNetwork)
	if err != nil {
		return nil, err
	}
	rec, err := handshake.Initiate(conn, local, ep, false, registry, clk)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return rec, nil
}

// pumpLocalAccepted drains one local-network manager's raw accepted
// sockets. There is no HTTP decoy on the local network (spec §4.3), so
// the accepted net.Conn is handed straight to the connection-initiate
// protocol.
func pumpLocalAccepted(lm *localdht.Manager, local handshake.Identity, registry *connreg.Registry, binder *relayBinder) {
	for conn := range lm.AcceptedConns() {
		conn := conn
		go func() {
			remote := observedEndpointFromConn(conn, lm.Interface().Family)
			dispatch := func(stream meshnet.Stream, remoteEndpoint meshnet.Endpoint) error {
				dht.Serve(lm.Node(), stream)
				return nil
			}
			rec, err := handshake.Accept(conn, remote, local, registry, dispatch)
			if err != nil {
				logger.Debug("local accept handshake failed", "remote", remote.String(), "err", err)
				conn.Close()
				return
			}
			if rec != nil {
				go binder.serve(rec)
			}
		}()
	}
}

func observedEndpointFromConn(conn net.Conn, family meshnet.Family) meshnet.Endpoint {
	tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return meshnet.Endpoint{}
	}
	if family == meshnet.AddrV6 {
		return meshnet.NewV6(tcpAddr.IP, uint16(tcpAddr.Port))
	}
	return meshnet.NewV4(tcpAddr.IP, uint16(tcpAddr.Port))
}

func familyOfConn(conn net.Conn) meshnet.Family {
	tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if ok && tcpAddr.IP.To4() == nil {
		return meshnet.AddrV6
	}
	return meshnet.AddrV4
}
