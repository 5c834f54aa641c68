package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/meshnet-io/meshconn/internal/core/connreg"
	"github.com/meshnet-io/meshconn/internal/core/discovery/dht"
	"github.com/meshnet-io/meshconn/internal/core/handshake"
	"github.com/meshnet-io/meshconn/internal/core/transport"
	"github.com/meshnet-io/meshconn/internal/pkg/log"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

var logger = log.Logger("core/relay")

// PeerSource is the IPv4 DHT node's random-sampling surface the relay
// coordinator fills its candidate pool from (spec §4.8: "samples random
// endpoints from the IPv4 DHT's k-bucket").
//
//go:generate go run go.uber.org/mock/mockgen -source=coordinator.go -destination=peersource_mock_test.go -package=relay PeerSource
type PeerSource interface {
	RandomNode() (dht.PeerRecord, bool)
}

// AnnounceFunc triggers beginAnnounce(networkId, false, self) once this
// node starts hosting networkId for relay (spec §4.8 server step 2).
type AnnounceFunc func(ctx context.Context, networkID meshnet.NetworkId, self dht.PeerRecord)

// Coordinator is the relay coordinator (spec §4.8, component C8).
type Coordinator struct {
	cfg       Config
	local     handshake.Identity
	registry  *connreg.Registry
	transport *transport.Transport
	clock     clock.Clock
	pool      *candidatePool
	source    PeerSource
	announce  AnnounceFunc

	mu      sync.Mutex
	round   uint64
	hosted  map[string]map[meshnet.PeerId]struct{} // networkId key -> hosting peer ids
	byPeer  map[meshnet.PeerId]meshnet.NetworkId    // reverse index for withdraw-on-dispose

	// serving guards ServeControlFrames against being started twice on
	// the same registered connection — several call sites (accept, LAN
	// dial, relay-client dial, MakeConnection) may all observe the same
	// *meshnet.ConnectionRecord through connreg.Coordinate's in-flight
	// coalescing or handshake.Initiate's crossed-connect convergence.
	serving sync.Map // *meshnet.ConnectionRecord -> struct{}

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New constructs a relay coordinator. source may be nil (the relay-
// client fill loop then has nothing to sample and stays idle) to support
// configurations without internet DHT access.
func New(cfg Config, local handshake.Identity, registry *connreg.Registry, t *transport.Transport, clk clock.Clock, source PeerSource, announce AnnounceFunc) (*Coordinator, error) {
	pool, err := newCandidatePool(cfg.CandidateSampleSeed)
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:       cfg,
		local:     local,
		registry:  registry,
		transport: t,
		clock:     clk,
		pool:      pool,
		source:    source,
		announce:  announce,
		hosted:    make(map[string]map[meshnet.PeerId]struct{}),
		byPeer:    make(map[meshnet.PeerId]meshnet.NetworkId),
		closeCh:   make(chan struct{}),
	}
	if registry != nil {
		registry.AddDisposeHook(c.OnDispose)
	}
	return c, nil
}

// Run launches the 30s relay-client fill loop. Intended to be started
// with `go c.Run()`.
func (c *Coordinator) Run() {
	c.wg.Add(1)
	defer c.wg.Done()

	ticker := c.clock.Ticker(c.cfg.fillInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.fillOnce(context.Background())
		case <-c.closeCh:
			return
		}
	}
}

func (c *Coordinator) Close() {
	c.closeOnce.Do(func() { close(c.closeCh) })
	c.wg.Wait()
}

// HostedNetworkCount reports how many distinct network ids this node is
// currently hosting for relay (spec §4.8 server side). Exposed for the
// relay-pool metrics gauge.
func (c *Coordinator) HostedNetworkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hosted)
}

// ObserveCandidate records a routing-table peer as a relay-client
// candidate, called by the DHT manager (C4) whenever it learns of a new
// IPv4-internet peer.
func (c *Coordinator) ObserveCandidate(rec dht.PeerRecord) {
	c.pool.observe(rec)
}

// fillOnce implements spec §4.8 client side: sample candidates up to the
// shortfall, dial each concurrently, atomically claim a relay-client
// slot on success.
func (c *Coordinator) fillOnce(ctx context.Context) {
	needed := c.cfg.maxRelayClients() - c.registry.RelayClientCount()
	if needed <= 0 {
		return
	}

	c.mu.Lock()
	c.round++
	round := c.round
	c.mu.Unlock()

	candidates := c.pool.sample(round, needed)
	if len(candidates) == 0 {
		if c.source == nil {
			return
		}
		if rec, ok := c.source.RandomNode(); ok {
			c.pool.observe(rec)
			candidates = []meshnet.PeerId{rec.PeerId}
		}
	}

	var wg sync.WaitGroup
	for _, peer := range candidates {
		ep, ok := c.pool.endpointFor(peer)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(peer meshnet.PeerId, ep meshnet.Endpoint) {
			defer wg.Done()
			c.dialRelayClient(ctx, peer, ep)
		}(peer, ep)
	}
	wg.Wait()
}

// dialRelayClient performs one relay-client dial attempt: connect,
// handshake, and — only if still under capacity — claim the slot and
// mark the connection relay-client mode.
func (c *Coordinator) dialRelayClient(ctx context.Context, peer meshnet.PeerId, ep meshnet.Endpoint) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.dialTimeout())
	defer cancel()

	conn, err := c.transport.Connect(dialCtx, ep, meshnet.IPv4Internet)
	if err != nil {
		c.pool.markFailed(peer)
		logger.Debug("relay candidate dial failed", "peer", peer.String(), "err", err)
		return
	}
	stream, err := transport.WrapHTTPDecoy(conn, transport.RoleClient)
	if err != nil {
		conn.Close()
		c.pool.markFailed(peer)
		return
	}

	rec, err := handshake.Initiate(stream, c.local, ep, false, c.registry, c.clock)
	if err != nil {
		c.pool.markFailed(peer)
		logger.Debug("relay candidate handshake failed", "peer", peer.String(), "err", err)
		return
	}

	if !c.registry.MarkRelayClient(rec.PeerId) {
		// Over-capacity win: this connection exists only to serve as a
		// relay client, so a losing race tears it down rather than
		// leaving an untracked connection in the registry.
		logger.Debug("relay-client list full, discarding over-capacity win", "peer", rec.PeerId.String())
		c.registry.Dispose(rec.PeerId)
		return
	}

	go c.ServeControlFrames(rec)
}

// ServeControlFrames drains rec.Stream for relay control frames until the
// stream closes or a frame is malformed, dispatching each to
// HandleControlFrame. Every connection this node registers — inbound,
// LAN, relay-client, or an application MakeConnection — runs one of these
// so the server side of §4.8 (host-network/withdraw/tunnel-request) is
// actually reachable, not just dispatchable. Intended to be started with
// `go c.ServeControlFrames(rec)` right after registration succeeds.
func (c *Coordinator) ServeControlFrames(rec *meshnet.ConnectionRecord) {
	if _, already := c.serving.LoadOrStore(rec, struct{}{}); already {
		return
	}
	defer c.serving.Delete(rec)

	for {
		f, err := ReadFrame(rec.Stream)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("control frame read failed, disposing connection", "peer", rec.PeerId.String(), "err", err)
			}
			c.registry.Dispose(rec.PeerId)
			return
		}
		if err := c.HandleControlFrame(rec, f); err != nil {
			logger.Debug("control frame handling failed", "peer", rec.PeerId.String(), "type", f.Type, "err", err)
			c.registry.Dispose(rec.PeerId)
			return
		}
	}
}

// HandleControlFrame dispatches one relay control frame received over an
// already-registered connection (spec §6 NEW, server side of §4.8).
func (c *Coordinator) HandleControlFrame(rec *meshnet.ConnectionRecord, f Frame) error {
	switch f.Type {
	case MsgHostNetworkRequest:
		return c.handleHostNetworkRequest(rec, f.Payload)
	case MsgHostNetworkWithdraw:
		return c.handleHostNetworkWithdraw(rec, f.Payload)
	case MsgTunnelRequest:
		return c.handleTunnelRequest(rec, f.Payload)
	default:
		return ErrUnknownMessageType
	}
}

func (c *Coordinator) handleHostNetworkRequest(rec *meshnet.ConnectionRecord, payload []byte) error {
	networkID, err := DecodeHostNetworkPayload(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	key := networkKeyString(networkID)
	set, ok := c.hosted[key]
	if !ok {
		set = make(map[meshnet.PeerId]struct{})
		c.hosted[key] = set
	}
	set[rec.PeerId] = struct{}{}
	c.byPeer[rec.PeerId] = networkID
	c.mu.Unlock()

	if c.announce != nil {
		self := dht.PeerRecord{PeerId: rec.PeerId, Endpoint: meshnet.NewV4(nil, c.cfg.LocalPort)}
		c.announce(context.Background(), networkID, self)
	}

	return WriteFrame(rec.Stream, Frame{Type: MsgHostNetworkAck})
}

func (c *Coordinator) handleHostNetworkWithdraw(rec *meshnet.ConnectionRecord, payload []byte) error {
	networkID, err := DecodeHostNetworkPayload(payload)
	if err != nil {
		return err
	}
	c.withdraw(rec.PeerId, networkID)
	return nil
}

func (c *Coordinator) withdraw(peer meshnet.PeerId, networkID meshnet.NetworkId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := networkKeyString(networkID)
	if set, ok := c.hosted[key]; ok {
		delete(set, peer)
		if len(set) == 0 {
			delete(c.hosted, key)
		}
	}
	delete(c.byPeer, peer)
}

// OnDispose removes peer from every hosted-network list it belonged to,
// pruning empty networks (spec §4.8 server step 3). Called by the
// connection registry's disposal path.
func (c *Coordinator) OnDispose(peer meshnet.PeerId) {
	c.mu.Lock()
	networkID, ok := c.byPeer[peer]
	c.mu.Unlock()
	if !ok {
		return
	}
	c.withdraw(peer, networkID)
}

// handleTunnelRequest implements the server side of a virtual connection
// (spec §4.8 "Virtual connections"): find a hosted connection to target
// and pump bytes between it and the requester's stream.
//
// This relay is single-hop and non-multiplexing: once a hosted
// connection is claimed for a tunnel it is fully dedicated to that
// tunnel for its remaining lifetime, consistent with this module's
// broader simplified single-hop DHT/relay stand-in.
func (c *Coordinator) handleTunnelRequest(requester *meshnet.ConnectionRecord, payload []byte) error {
	target, _, err := DecodeTunnelRequest(payload)
	if err != nil {
		return err
	}

	tunnelID := uuid.New()

	targetRec, ok := c.registry.Lookup(target)
	if !ok {
		logger.Debug("tunnel request rejected, no route", "tunnel", tunnelID, "target", target.String())
		return WriteFrame(requester.Stream, Frame{Type: MsgTunnelReject, Payload: EncodeTunnelReject(TunnelRejectNoRoute)})
	}

	if err := WriteFrame(requester.Stream, Frame{Type: MsgTunnelAccept}); err != nil {
		return err
	}

	logger.Debug("tunnel established", "tunnel", tunnelID, "requester", requester.PeerId.String(), "target", target.String())
	go pumpBytes(requester.Stream, targetRec.Stream)
	return nil
}

// DialVirtual implements the client side of a virtual connection (spec
// §4.8): send a tunnel request over relayStream (an established relay
// connection), await the reply, and — on accept — run the normal
// version-1 handshake over the resulting stream, flagged isVirtual=true.
func DialVirtual(relayStream meshnet.Stream, target meshnet.PeerId, networkID *meshnet.NetworkId, local handshake.Identity, remoteEndpoint meshnet.Endpoint, registry *connreg.Registry, clk clock.Clock) (*meshnet.ConnectionRecord, error) {
	tunnelID := uuid.New()
	if err := WriteFrame(relayStream, Frame{Type: MsgTunnelRequest, Payload: EncodeTunnelRequest(target, networkID)}); err != nil {
		return nil, err
	}

	f, err := ReadFrame(relayStream)
	if err != nil {
		return nil, err
	}
	switch f.Type {
	case MsgTunnelAccept:
		logger.Debug("tunnel accepted", "tunnel", tunnelID, "target", target.String())
		return handshake.Initiate(relayStream, local, remoteEndpoint, true, registry, clk)
	case MsgTunnelReject:
		reason, _ := DecodeTunnelReject(f.Payload)
		logger.Debug("tunnel rejected", "tunnel", tunnelID, "target", target.String(), "reason", reason)
		return nil, fmt.Errorf("%w: reason %d", ErrTunnelRejected, reason)
	default:
		return nil, ErrUnknownMessageType
	}
}

func pumpBytes(a, b meshnet.Stream) {
	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			a.Close()
			b.Close()
		})
	}
	defer closeBoth()

	done := make(chan struct{}, 2)
	go func() { io.Copy(a, b); done <- struct{}{} }()
	go func() { io.Copy(b, a); done <- struct{}{} }()
	<-done
}

func networkKeyString(id meshnet.NetworkId) string { return string(id.Bytes()) }
