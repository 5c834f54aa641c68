package meshconn

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/meshnet-io/meshconn/config"
	"github.com/meshnet-io/meshconn/internal/core/connreg"
	"github.com/meshnet-io/meshconn/internal/core/discovery/coordinator"
	"github.com/meshnet-io/meshconn/internal/core/discovery/dht"
	"github.com/meshnet-io/meshconn/internal/core/discovery/localdht"
	"github.com/meshnet-io/meshconn/internal/core/handshake"
	"github.com/meshnet-io/meshconn/internal/core/overlay"
	"github.com/meshnet-io/meshconn/internal/core/relay"
	"github.com/meshnet-io/meshconn/internal/core/transport"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// candidateSink breaks what would otherwise be a circular fx dependency:
// the DHT manager's Config needs a callback into the relay coordinator
// (§4.8 client-side candidate pool), but the relay coordinator is itself
// built from the DHT manager's IPv4 node (provideRelayPeerSource). The
// sink is provided as an empty shell before either is constructed, handed
// to provideCoordinatorConfig, and pointed at the real coordinator once it
// exists via a late fx.Invoke.
type candidateSink struct {
	mu sync.Mutex
	fn func(dht.PeerRecord)
}

func (s *candidateSink) observe(rec dht.PeerRecord) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(rec)
	}
}

func (s *candidateSink) bind(fn func(dht.PeerRecord)) {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
}

func newCandidateSink() *candidateSink { return &candidateSink{} }

// relayBinder carries a *relay.Coordinator to the pump loops started from
// provideCoordinatorConfig's OnLocalManagerStarted closures, for the same
// circularity reason as candidateSink: the relay coordinator is built
// from this manager's IPv4 node.
type relayBinder struct {
	mu    sync.Mutex
	coord *relay.Coordinator
}

func (b *relayBinder) bind(c *relay.Coordinator) {
	b.mu.Lock()
	b.coord = c
	b.mu.Unlock()
}

// serve starts ServeControlFrames on rec if the relay coordinator has
// been bound yet. It always has been by the time any real connection is
// established — this wiring runs during fx.New, long before Start()
// admits any traffic.
func (b *relayBinder) serve(rec *meshnet.ConnectionRecord) {
	b.mu.Lock()
	c := b.coord
	b.mu.Unlock()
	if c != nil {
		c.ServeControlFrames(rec)
	}
}

func newRelayBinder() *relayBinder { return &relayBinder{} }

// bindLateCircularDeps is run via fx.Invoke once the relay coordinator
// exists, closing the two deliberate circular-dependency gaps
// (candidateSink, relayBinder) that provideCoordinatorConfig needed
// filled before coordinator.Manager (and therefore relay.Coordinator
// itself) could be constructed.
func bindLateCircularDeps(sink *candidateSink, binder *relayBinder, rc *relay.Coordinator) {
	sink.bind(rc.ObserveCandidate)
	binder.bind(rc)
}

// provideOverlayEndpoint starts the overlay controller (component C9),
// when enabled, before the DHT manager (C4) is constructed: C4 needs the
// resulting onion address as its overlay node's own endpoint (spec
// §4.9), and fx's dependency graph is the natural place to express that
// ordering rather than sequencing it by hand in Node.New.
func provideOverlayEndpoint(cfg config.Config, a *overlay.Adapter) (meshnet.Endpoint, error) {
	if !cfg.OverlayEnabled {
		return meshnet.Endpoint{}, nil
	}
	return a.Start(context.Background())
}

// provideCoordinatorConfig builds coordinator.Config and wires
// OnLocalManagerStarted to pump every local-network manager's discovered
// endpoints and accepted connections into the connection-initiate
// protocol (C6) — the external-caller contract localdht.Manager's own
// doc comments describe, which the coordinator package itself
// deliberately does not implement (see DESIGN.md).
func provideCoordinatorConfig(
	cfg config.Config,
	overlayEndpoint meshnet.Endpoint,
	local handshake.Identity,
	registry *connreg.Registry,
	t *transport.Transport,
	clk clock.Clock,
	realInFlight *connreg.InFlightSet,
	sink *candidateSink,
	binder *relayBinder,
) coordinator.Config {
	cc := config.CoordinatorConfigFromUnified(cfg, overlayEndpoint)
	cc.OnLocalManagerStarted = func(lm *localdht.Manager) {
		go pumpLocalDiscovered(lm, local, registry, t, realInFlight, clk, binder)
		go pumpLocalAccepted(lm, local, registry, binder)
	}
	cc.OnIPv4CandidateObserved = sink.observe
	return cc
}

// provideRelayPeerSource adapts the IPv4 DHT node to relay.PeerSource.
// Returning an untyped nil (rather than a nil *dht.Node boxed in a
// non-nil interface) keeps the coordinator's own `source == nil` guard
// correct.
func provideRelayPeerSource(m *coordinator.Manager) relay.PeerSource {
	node := m.NodeForKind(meshnet.IPv4Internet)
	if node == nil {
		return nil
	}
	return node
}

// provideRelayAnnounceFunc adapts the DHT manager's BeginAnnounce to the
// narrower signature the relay coordinator calls once it starts hosting
// a network (spec §4.8 server step 2).
func provideRelayAnnounceFunc(m *coordinator.Manager) relay.AnnounceFunc {
	return func(ctx context.Context, networkID meshnet.NetworkId, self dht.PeerRecord) {
		_ = m.BeginAnnounce(ctx, networkID, false, self, func(coordinator.FindResult) {})
	}
}

func dhtSelfRecord(peerId meshnet.PeerId, localPort uint16) dht.PeerRecord {
	return dht.PeerRecord{PeerId: peerId, Endpoint: meshnet.NewV4(nil, localPort)}
}
