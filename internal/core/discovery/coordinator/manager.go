package coordinator

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/meshnet-io/meshconn/internal/core/discovery/dht"
	"github.com/meshnet-io/meshconn/internal/core/discovery/localdht"
	"github.com/meshnet-io/meshconn/internal/core/netscan"
	"github.com/meshnet-io/meshconn/internal/pkg/log"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

var logger = log.Logger("discovery/coordinator")

// FindResult is delivered once per transport that returns a non-empty
// result from beginFindPeers (spec §4.4: "No global aggregation").
type FindResult struct {
	Kind  meshnet.TransportKind
	Peers []dht.PeerRecord
}

// Manager is the DHT manager (spec §4.4, component C4): it owns the
// IPv4, IPv6, and (optionally) anonymity-overlay DhtNodeHandles, fetches
// the bootstrap blob, and runs the local-interface network watcher.
type Manager struct {
	cfg Config

	ipv4    *dht.Node
	ipv6    *dht.Node
	overlay *dht.Node // nil unless cfg.OverlayEnabled

	localFactory localdht.Factory
	clock        clock.Clock

	mu        sync.Mutex
	localMgrs map[string]*localdht.Manager // keyed by NetworkInterfaceRecord.LocalIP
	lastScan  []meshnet.NetworkInterfaceRecord

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New constructs the DHT manager, starts the asynchronous bootstrap
// fetch, and — if cfg.LocalDhtEnabled — the network watcher (spec §4.4
// steps 1–4).
func New(cfg Config, localFactory localdht.Factory, clk clock.Clock) (*Manager, error) {
	ipv4Node, err := dht.NewNode(meshnet.NewV4(net.IPv4zero, cfg.LocalPort), meshnet.IPv4Internet)
	if err != nil {
		return nil, err
	}
	if cfg.OnIPv4CandidateObserved != nil {
		ipv4Node.SetOnInsert(cfg.OnIPv4CandidateObserved)
	}
	ipv6Node, err := dht.NewNode(meshnet.NewV6(net.IPv6zero, cfg.LocalPort), meshnet.IPv6Internet)
	if err != nil {
		return nil, err
	}

	var overlayNode *dht.Node
	if cfg.OverlayEnabled {
		overlayNode, err = dht.NewNode(cfg.OverlayDomainEndpoint, meshnet.AnonymityOverlay)
		if err != nil {
			return nil, err
		}
	}

	m := &Manager{
		cfg:          cfg,
		ipv4:         ipv4Node,
		ipv6:         ipv6Node,
		overlay:      overlayNode,
		localFactory: localFactory,
		clock:        clk,
		localMgrs:    make(map[string]*localdht.Manager),
		closeCh:      make(chan struct{}),
	}

	m.wg.Add(1)
	go m.fetchBootstrapAsync()

	if cfg.LocalDhtEnabled {
		m.mu.Lock()
		m.lastScan = netscan.Scan()
		for _, iface := range m.lastScan {
			m.startLocalManagerLocked(iface)
		}
		m.mu.Unlock()

		m.wg.Add(1)
		go m.networkWatcher()
	}

	return m, nil
}

// NodeForKind returns the DhtNodeHandle for kind, or nil if that
// transport isn't enabled.
func (m *Manager) NodeForKind(kind meshnet.TransportKind) *dht.Node {
	switch kind {
	case meshnet.IPv4Internet:
		return m.ipv4
	case meshnet.IPv6Internet:
		return m.ipv6
	case meshnet.AnonymityOverlay:
		return m.overlay
	default:
		return nil
	}
}

// LocalManagers returns a snapshot of the currently live per-interface
// local-network DHT managers.
func (m *Manager) LocalManagers() []*localdht.Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*localdht.Manager, 0, len(m.localMgrs))
	for _, lm := range m.localMgrs {
		out = append(out, lm)
	}
	return out
}

func (m *Manager) fetchBootstrapAsync() {
	defer m.wg.Done()
	if m.cfg.BootstrapURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.bootstrapFetchTimeout())
	defer cancel()

	eps, err := fetchBootstrapBlob(ctx, m.cfg.BootstrapURL)
	if err != nil {
		logger.Debug("bootstrap fetch failed, ignoring", "err", err)
		return
	}
	m.dispatchBootstrapEndpoints(eps)
}

// dispatchBootstrapEndpoints adds each endpoint to its family's DHT node
// and no others, regardless of fetch/decode order (spec §8 scenario 6).
func (m *Manager) dispatchBootstrapEndpoints(eps []meshnet.Endpoint) {
	for _, ep := range eps {
		node := m.nodeForFamily(ep.Family())
		if node == nil {
			continue
		}
		// Bootstrap endpoints carry no PeerId (spec §6); key them by a
		// synthetic id derived from the endpoint itself so two distinct
		// bootstrap endpoints never collide in the routing table.
		node.Insert(meshnet.PeerId(ep.Fingerprint()), ep)
	}
}

func (m *Manager) nodeForFamily(f meshnet.Family) *dht.Node {
	switch f {
	case meshnet.AddrV4:
		return m.ipv4
	case meshnet.AddrV6:
		return m.ipv6
	case meshnet.AddrUnspecified:
		return m.overlay
	default:
		return nil
	}
}

// networkWatcher re-scans live interfaces every cfg.networkWatcherInterval
// and reconciles the set of local-network DHT managers against it (spec
// §4.4 "Network watcher algorithm", §8 invariant 6).
func (m *Manager) networkWatcher() {
	defer m.wg.Done()
	ticker := m.clock.Ticker(m.cfg.networkWatcherInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reconcileInterfaces()
		case <-m.closeCh:
			return
		}
	}
}

func (m *Manager) reconcileInterfaces() {
	curr := netscan.Scan()

	m.mu.Lock()
	defer m.mu.Unlock()

	added, removed := netscan.Diff(m.lastScan, curr)
	m.lastScan = curr

	var closeErr error
	for _, iface := range removed {
		if lm, ok := m.localMgrs[iface.LocalIP]; ok {
			closeErr = multierr.Append(closeErr, lm.Close())
			delete(m.localMgrs, iface.LocalIP)
		}
	}
	if closeErr != nil {
		logger.Debug("closing removed interfaces' local dht managers", "err", closeErr)
	}
	if len(added) > 0 {
		for _, iface := range curr {
			if _, exists := m.localMgrs[iface.LocalIP]; !exists {
				m.startLocalManagerLocked(iface)
			}
		}
	}
}

// startLocalManagerLocked must be called with m.mu held.
func (m *Manager) startLocalManagerLocked(iface meshnet.NetworkInterfaceRecord) {
	lm, err := m.localFactory(iface)
	if err != nil {
		logger.Debug("local dht manager start failed", "iface", iface.Name, "err", err)
		return
	}
	m.localMgrs[iface.LocalIP] = lm
	if m.cfg.OnLocalManagerStarted != nil {
		m.cfg.OnLocalManagerStarted(lm)
	}
}

// beginFindPeers dispatches one concurrent query per enabled transport
// and per live local-segment manager, invoking callback once per
// transport whose result is non-empty (spec §4.4). localOnly suppresses
// the internet and overlay queries.
func (m *Manager) beginFindPeers(ctx context.Context, networkID meshnet.NetworkId, localOnly bool, callback func(FindResult)) error {
	key := meshnet.DeriveKey(networkID)
	g, _ := errgroup.WithContext(ctx)

	query := func(kind meshnet.TransportKind, node *dht.Node) {
		if node == nil {
			return
		}
		g.Go(func() error {
			peers := node.FindLocal(key)
			if len(peers) > 0 {
				callback(FindResult{Kind: kind, Peers: peers})
			}
			return nil
		})
	}

	if !localOnly {
		query(meshnet.IPv4Internet, m.ipv4)
		query(meshnet.IPv6Internet, m.ipv6)
		query(meshnet.AnonymityOverlay, m.overlay)
	}
	for _, lm := range m.LocalManagers() {
		query(meshnet.LocalNetwork, lm.Node())
	}

	return g.Wait()
}

// BeginFindPeers is the exported entry point; see beginFindPeers.
func (m *Manager) BeginFindPeers(ctx context.Context, networkID meshnet.NetworkId, localOnly bool, callback func(FindResult)) error {
	return m.beginFindPeers(ctx, networkID, localOnly, callback)
}

// beginAnnounce is symmetric to beginFindPeers but publishes the node's
// self-endpoint into each transport's DHT. The anonymity-overlay branch
// performs a find rather than an announce — a known quirk of the
// original design, preserved here rather than silently corrected (spec
// §4.4, §9 open questions).
func (m *Manager) beginAnnounce(ctx context.Context, networkID meshnet.NetworkId, localOnly bool, self dht.PeerRecord, callback func(FindResult)) error {
	key := meshnet.DeriveKey(networkID)
	g, _ := errgroup.WithContext(ctx)

	announce := func(kind meshnet.TransportKind, node *dht.Node) {
		if node == nil {
			return
		}
		g.Go(func() error {
			node.StoreLocal(key, self)
			return nil
		})
	}
	find := func(kind meshnet.TransportKind, node *dht.Node) {
		if node == nil {
			return
		}
		g.Go(func() error {
			peers := node.FindLocal(key)
			if len(peers) > 0 {
				callback(FindResult{Kind: kind, Peers: peers})
			}
			return nil
		})
	}

	if !localOnly {
		announce(meshnet.IPv4Internet, m.ipv4)
		announce(meshnet.IPv6Internet, m.ipv6)
		find(meshnet.AnonymityOverlay, m.overlay) // preserved quirk, not a typo
	}
	for _, lm := range m.LocalManagers() {
		announce(meshnet.LocalNetwork, lm.Node())
	}

	return g.Wait()
}

// BeginAnnounce is the exported entry point; see beginAnnounce.
func (m *Manager) BeginAnnounce(ctx context.Context, networkID meshnet.NetworkId, localOnly bool, self dht.PeerRecord, callback func(FindResult)) error {
	return m.beginAnnounce(ctx, networkID, localOnly, self, callback)
}

// AcceptInternetDhtConnection dispatches stream to the DHT node matching
// remoteEndpoint's address family (spec §4.4).
func (m *Manager) AcceptInternetDhtConnection(stream meshnet.Stream, remoteEndpoint meshnet.Endpoint) error {
	node := m.nodeForFamily(remoteEndpoint.Family())
	if node == nil {
		return fmt.Errorf("%w: %s", meshnet.ErrUnsupportedFamily, remoteEndpoint.Family())
	}
	dht.Serve(node, stream)
	return nil
}

// Close disposes every local-network manager, stops the network
// watcher, and closes the in-memory IPv4/IPv6/overlay node handles.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.closeCh)
	})
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	for ip, lm := range m.localMgrs {
		err = multierr.Append(err, lm.Close())
		delete(m.localMgrs, ip)
	}
	err = multierr.Append(err, m.ipv4.Close())
	err = multierr.Append(err, m.ipv6.Close())
	if m.overlay != nil {
		err = multierr.Append(err, m.overlay.Close())
	}
	return err
}
