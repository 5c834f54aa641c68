package coordinator

import (
	"time"

	"github.com/meshnet-io/meshconn/internal/core/discovery/dht"
	"github.com/meshnet-io/meshconn/internal/core/discovery/localdht"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// Config bundles what the DHT manager needs at construction (spec §4.4).
type Config struct {
	// LocalPort is the shared local service port P: the IPv4 node binds
	// 0.0.0.0:P, the IPv6 node binds [::]:P.
	LocalPort uint16

	// LocalDhtEnabled starts the 15s network watcher managing one
	// LocalNetworkDhtManager per live non-loopback interface.
	LocalDhtEnabled bool

	// OverlayEnabled creates the third DHT node bound to the node's own
	// hidden-service domain endpoint.
	OverlayEnabled bool
	// OverlayDomainEndpoint is that domain endpoint; required when
	// OverlayEnabled is true.
	OverlayDomainEndpoint meshnet.Endpoint

	// BootstrapURL is the well-known HTTPS URL the bootstrap blob is
	// fetched from (spec §4.4 step 3, §6).
	BootstrapURL string
	// BootstrapFetchTimeout bounds the asynchronous fetch.
	BootstrapFetchTimeout time.Duration

	// NetworkWatcherInterval is normally 15s (spec §4.4); overridable for
	// tests.
	NetworkWatcherInterval time.Duration

	// OnLocalManagerStarted, when set, is invoked for every
	// localdht.Manager this Manager starts, including the ones started
	// synchronously inside New before it returns. The top-level node
	// composition uses it to pump each interface's DiscoveredEndpoints
	// and AcceptedConns channels into the connection-initiate protocol
	// (spec §4.3, §4.6) — wiring the coordinator has no other reason to
	// know about.
	OnLocalManagerStarted func(lm *localdht.Manager)

	// OnIPv4CandidateObserved, when set, is invoked every time the IPv4-
	// internet DhtNodeHandle learns a new routing-table entry — from a
	// bootstrap endpoint or from a remote peer's announce arriving over
	// the DHT demux channel. The relay coordinator (C8) uses this to fill
	// its client-side candidate pool (spec §4.8) without the DHT manager
	// needing to know relay exists. The top-level composition wires this
	// indirectly (see wiring.go's candidateSink) since the relay
	// coordinator is itself built from this manager's IPv4 node, and a
	// direct dependency here would be circular.
	OnIPv4CandidateObserved func(rec dht.PeerRecord)
}

func (c Config) networkWatcherInterval() time.Duration {
	if c.NetworkWatcherInterval > 0 {
		return c.NetworkWatcherInterval
	}
	return 15 * time.Second
}

func (c Config) bootstrapFetchTimeout() time.Duration {
	if c.BootstrapFetchTimeout > 0 {
		return c.BootstrapFetchTimeout
	}
	return 10 * time.Second
}
