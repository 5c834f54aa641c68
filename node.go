// Package meshconn assembles the node's components into one running
// process: transport, discovery, connection registry, handshake, relay,
// reachability, and the anonymity-overlay adapter.
package meshconn

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/meshnet-io/meshconn/config"
	"github.com/meshnet-io/meshconn/internal/core/connreg"
	"github.com/meshnet-io/meshconn/internal/core/discovery/coordinator"
	"github.com/meshnet-io/meshconn/internal/core/discovery/localdht"
	"github.com/meshnet-io/meshconn/internal/core/handshake"
	"github.com/meshnet-io/meshconn/internal/core/overlay"
	"github.com/meshnet-io/meshconn/internal/core/reachability"
	"github.com/meshnet-io/meshconn/internal/core/relay"
	"github.com/meshnet-io/meshconn/internal/core/transport"
	"github.com/meshnet-io/meshconn/internal/pkg/log"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

var logger = log.Logger("meshconn")

// NodeState tracks where a Node is in its lifecycle.
type NodeState int

const (
	StateIdle NodeState = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

const (
	initializeTimeout = 30 * time.Second
	stopTimeout       = 15 * time.Second
)

// Node is the top-level facade over a meshconn process: one fx app
// wiring every component (C1-C9), plus the top-level TCP accept loop,
// memory watchdog, and metrics updater this composition needs but no
// single component owns.
type Node struct {
	cfg    config.Config
	peerId meshnet.PeerId

	mu    sync.Mutex
	state NodeState

	app *fx.App

	identity     handshake.Identity
	registry     *connreg.Registry
	transport    *transport.Transport
	dht          *coordinator.Manager
	relayCoord   *relay.Coordinator
	reachability *reachability.Machines
	overlay      *overlay.Adapter
	clock        clock.Clock

	realInFlight    *connreg.InFlightSet
	virtualInFlight *connreg.InFlightSet

	listener *transport.Listener
	closeCh  chan struct{}
}

// New builds the fx dependency graph for cfg and populates Node's fields.
// It does not start anything — that happens in Start.
func New(ctx context.Context, cfg config.Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	peerId, err := meshnet.NewPeerId()
	if err != nil {
		return nil, fmt.Errorf("meshconn: generating node identity: %w", err)
	}

	n := &Node{
		cfg:     cfg,
		peerId:  peerId,
		state:   StateIdle,
		closeCh: make(chan struct{}),
	}

	n.app = fx.New(
		fx.Supply(cfg),
		fx.Supply(peerId),
		fx.Provide(func() handshake.Identity {
			return handshake.Identity{PeerId: peerId, ServicePort: cfg.LocalPort}
		}),
		fx.Provide(func(c config.Config) transport.Config { return config.TransportConfigFromUnified(c) }),
		fx.Provide(func(c config.Config) reachability.Config { return config.ReachabilityConfigFromUnified(c) }),
		fx.Provide(func(c config.Config) overlay.Config { return config.OverlayConfigFromUnified(c) }),
		fx.Provide(func(c config.Config) relay.Config { return config.RelayConfigFromUnified(c) }),
		fx.Provide(provideOverlayEndpoint),
		fx.Provide(newCandidateSink),
		fx.Provide(newRelayBinder),
		fx.Provide(fx.Annotate(
			provideCoordinatorConfig,
			fx.ParamTags("", "", "", "", "", "", `name:"real"`, "", ""),
		)),
		fx.Provide(provideRelayPeerSource),
		fx.Provide(provideRelayAnnounceFunc),
		fx.Invoke(bindLateCircularDeps),

		connreg.Module,
		transport.Module,
		handshake.Module,
		localdht.Module,
		coordinator.Module,
		reachability.Module,
		relay.Module,
		overlay.Module,

		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: eventLogger()}
		}),

		fx.Populate(
			&n.identity,
			&n.registry,
			&n.transport,
			&n.dht,
			&n.relayCoord,
			&n.reachability,
			&n.overlay,
			&n.clock,
		),
		fx.Populate(fx.Annotate(&n.realInFlight, fx.ParamTags(`name:"real"`))),
		fx.Populate(fx.Annotate(&n.virtualInFlight, fx.ParamTags(`name:"virtual"`))),
	)
	if err := n.app.Err(); err != nil {
		return nil, err
	}

	return n, nil
}

// eventLogger builds the zap logger fx's own diagnostic event stream is
// bridged through (fx.WithLogger). Component logging itself goes through
// internal/pkg/log, not this logger.
func eventLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Start runs the fx app's OnStart hooks, binds the internet-facing
// listener, and launches the accept loop, memory watchdog, and metrics
// updater.
func (n *Node) Start(ctx context.Context) error {
	n.setState(StateStarting)

	startCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()
	if err := n.app.Start(startCtx); err != nil {
		n.setState(StateStopped)
		return fmt.Errorf("meshconn: starting components: %w", err)
	}

	ln, err := transport.Listen(meshnet.NewV4(net.IPv4zero, n.cfg.LocalPort))
	if err != nil {
		n.setState(StateStopped)
		return fmt.Errorf("meshconn: binding listener: %w", err)
	}
	n.listener = ln
	go n.acceptLoop(ln)

	n.startMemoryWatchdog()
	go n.metricsLoop()

	n.setState(StateRunning)
	return nil
}

// Close stops the accept loop, watchdog, and metrics updater, then runs
// the fx app's OnStop hooks.
func (n *Node) Close() error {
	n.setState(StateStopping)
	close(n.closeCh)

	if n.listener != nil {
		n.listener.Close()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	err := n.app.Stop(stopCtx)

	n.setState(StateStopped)
	return err
}

func (n *Node) setState(s NodeState) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

// State reports the node's current lifecycle state.
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// PeerId is this node's self-generated identity (spec §4.6).
func (n *Node) PeerId() meshnet.PeerId { return n.peerId }

// ConnectionCount reports the registry's current real/virtual split
// (component C5).
func (n *Node) ConnectionCount() (real, virtual int) { return n.registry.CountByKind() }

// RelayClientCount reports how many peers this node currently offloads
// relay-based reachability to (spec §8 invariant 4).
func (n *Node) RelayClientCount() int { return n.registry.RelayClientCount() }

// HostedNetworkCount reports how many network ids this node currently
// hosts for relay (component C8 server side).
func (n *Node) HostedNetworkCount() int { return n.relayCoord.HostedNetworkCount() }

// ReachabilityState reports the current classification for family
// (component C7). family must be meshnet.AddrV4 or meshnet.AddrV6.
func (n *Node) ReachabilityState(family meshnet.Family) (meshnet.ReachabilityState, meshnet.UPnPState, error) {
	switch family {
	case meshnet.AddrV4:
		s, u := n.reachability.IPv4.State()
		return s, u, nil
	case meshnet.AddrV6:
		s, u := n.reachability.IPv6.State()
		return s, u, nil
	default:
		return 0, 0, fmt.Errorf("%w: %s", meshnet.ErrUnsupportedFamily, family)
	}
}

// BeginFindPeers is the exported connection-discovery entry point
// (component C4), exposed for an embedding application to drive peer
// discovery for a given network id.
func (n *Node) BeginFindPeers(ctx context.Context, networkID meshnet.NetworkId, localOnly bool, callback func(coordinator.FindResult)) error {
	return n.dht.BeginFindPeers(ctx, networkID, localOnly, callback)
}

// BeginAnnounce is the exported announce entry point (component C4).
func (n *Node) BeginAnnounce(ctx context.Context, networkID meshnet.NetworkId, localOnly bool, callback func(coordinator.FindResult)) error {
	self := dhtSelfRecord(n.peerId, n.cfg.LocalPort)
	return n.dht.BeginAnnounce(ctx, networkID, localOnly, self, callback)
}
