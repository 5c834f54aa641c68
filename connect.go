package meshconn

import (
	"context"
	"fmt"
	"time"

	"github.com/meshnet-io/meshconn/internal/core/connreg"
	"github.com/meshnet-io/meshconn/internal/core/handshake"
	"github.com/meshnet-io/meshconn/internal/core/relay"
	"github.com/meshnet-io/meshconn/internal/core/transport"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// MakeConnection is the application-facing connection-establishment
// entry point (component C5/C6, spec §2 data flow C5->C1->C6, §4.6
// "MakeConnection request coalescing"). It coalesces concurrent attempts
// to the same endpoint through the "real" in-flight set, then runs the
// transport dial, HTTP decoy, and connection-initiate handshake. On
// success the relay control sub-protocol is serviced on the resulting
// connection so an accepted tunnel request or hosted-network withdrawal
// can flow over it (spec §4.8).
func (n *Node) MakeConnection(ctx context.Context, endpoint meshnet.Endpoint, kind meshnet.TransportKind) (*meshnet.ConnectionRecord, error) {
	rec, err := connreg.Coordinate(
		ctx, n.realInFlight, n.clock, dialTimeoutFor(kind), endpoint,
		func() (*meshnet.ConnectionRecord, error) { return n.dialDirect(ctx, endpoint, kind) },
		func() (*meshnet.ConnectionRecord, bool) { return n.registry.LookupEndpoint(endpoint) },
	)
	if err != nil {
		return nil, err
	}
	go n.relayCoord.ServeControlFrames(rec)
	return rec, nil
}

func (n *Node) dialDirect(ctx context.Context, endpoint meshnet.Endpoint, kind meshnet.TransportKind) (*meshnet.ConnectionRecord, error) {
	conn, err := n.transport.Connect(ctx, endpoint, kind)
	if err != nil {
		return nil, err
	}
	stream, err := transport.WrapHTTPDecoy(conn, transport.RoleClient)
	if err != nil {
		conn.Close()
		return nil, err
	}
	rec, err := handshake.Initiate(stream, n.identity, endpoint, false, n.registry, n.clock)
	if err != nil {
		stream.Close()
		return nil, err
	}
	return rec, nil
}

// dialTimeoutFor mirrors transport's own per-kind dial budget (spec
// §4.1): Coordinate's waiters need the same timeout the dialer itself
// uses, and transport does not export it.
func dialTimeoutFor(kind meshnet.TransportKind) time.Duration {
	switch kind {
	case meshnet.LocalNetwork:
		return transport.TimeoutLAN
	case meshnet.AnonymityOverlay:
		return transport.TimeoutOverlay
	default:
		return transport.TimeoutInternet
	}
}

// MakeVirtualConnection tunnels a connection to target through relay, a
// peer already reachable directly that is hosting target's network
// (spec §4.8 "Virtual connections", §8 scenario 3). relay is dialed as
// an ordinary real connection first — that dial coalesces through the
// same in-flight set MakeConnection uses, so a relay already connected
// to for another tunnel is reused rather than redialed. The tunnel
// request/accept itself coalesces per-target through the "virtual"
// in-flight set (spec §4.6 "a parallel structure exists for virtual
// connections").
func (n *Node) MakeVirtualConnection(ctx context.Context, target meshnet.PeerId, relayEndpoint meshnet.Endpoint, relayKind meshnet.TransportKind, networkID *meshnet.NetworkId) (*meshnet.ConnectionRecord, error) {
	if existing, ok := n.registry.Lookup(target); ok {
		return existing, nil
	}

	dedupKey := meshnet.NewDomain("virtual:"+target.String(), 0)
	return connreg.Coordinate(
		ctx, n.virtualInFlight, n.clock, transport.TimeoutOverlay, dedupKey,
		func() (*meshnet.ConnectionRecord, error) {
			return n.dialVirtual(ctx, target, relayEndpoint, relayKind, networkID)
		},
		func() (*meshnet.ConnectionRecord, bool) { return n.registry.Lookup(target) },
	)
}

func (n *Node) dialVirtual(ctx context.Context, target meshnet.PeerId, relayEndpoint meshnet.Endpoint, relayKind meshnet.TransportKind, networkID *meshnet.NetworkId) (*meshnet.ConnectionRecord, error) {
	relayRec, err := n.MakeConnection(ctx, relayEndpoint, relayKind)
	if err != nil {
		return nil, fmt.Errorf("dialing relay for virtual connection to %s: %w", target.String(), err)
	}

	rec, err := relay.DialVirtual(relayRec.Stream, target, networkID, n.identity, relayEndpoint, n.registry, n.clock)
	if err != nil {
		return nil, err
	}
	go n.relayCoord.ServeControlFrames(rec)
	return rec, nil
}
