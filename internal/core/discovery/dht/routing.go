package dht

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/meshnet-io/meshconn/internal/pkg/log"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

var logger = log.Logger("discovery/dht")

// PeerRecord is one routing-table or value-store entry: a peer and the
// endpoint it's reachable at.
type PeerRecord struct {
	PeerId   meshnet.PeerId
	Endpoint meshnet.Endpoint
}

type valueEntry struct {
	record  PeerRecord
	expires time.Time
}

const (
	maxRoutingTableSize = 4096
	recordTTL           = 30 * time.Minute
	recentCacheSize     = 512
)

// Node is one DhtNodeHandle (spec §3): it exists once per (host,
// TransportKind) pair, owns a routing table and a local node id derived
// from its bind endpoint (meshnet.DeriveNodeId).
type Node struct {
	id   meshnet.NodeId
	bind meshnet.Endpoint
	kind meshnet.TransportKind

	mu      sync.RWMutex
	closed  bool
	routing map[meshnet.PeerId]PeerRecord

	// values is the local share of the "announce self in this network"
	// store: NetworkId (string key, see keyString) -> peer id -> entry.
	values map[string]map[meshnet.PeerId]valueEntry

	// recent is a bounded cache of recently-seen endpoints, keeping
	// routing-table churn from growing memory unboundedly (SPEC_FULL
	// domain stack: hashicorp/golang-lru/v2).
	recent *lru.Cache[meshnet.PeerId, meshnet.Endpoint]

	// onInsert, when set, is invoked with every routing-table entry this
	// node learns (bootstrap dispatch or a remote announce arriving
	// through Serve). The IPv4-internet node uses this to feed the relay
	// coordinator's candidate pool (spec §4.8).
	onInsert func(PeerRecord)
}

// SetOnInsert registers fn to run after every successful Insert. Only one
// callback is supported; a later call replaces the earlier one.
func (n *Node) SetOnInsert(fn func(PeerRecord)) {
	n.mu.Lock()
	n.onInsert = fn
	n.mu.Unlock()
}

// NewNode constructs a DhtNodeHandle bound to bind for the given
// TransportKind. Its node id is derived deterministically from bind
// (spec §3).
func NewNode(bind meshnet.Endpoint, kind meshnet.TransportKind) (*Node, error) {
	cache, err := lru.New[meshnet.PeerId, meshnet.Endpoint](recentCacheSize)
	if err != nil {
		return nil, err
	}
	return &Node{
		id:      meshnet.DeriveNodeId(bind),
		bind:    bind,
		kind:    kind,
		routing: make(map[meshnet.PeerId]PeerRecord),
		values:  make(map[string]map[meshnet.PeerId]valueEntry),
		recent:  cache,
	}, nil
}

func (n *Node) NodeId() meshnet.NodeId         { return n.id }
func (n *Node) BindEndpoint() meshnet.Endpoint { return n.bind }
func (n *Node) Kind() meshnet.TransportKind    { return n.kind }

// Insert adds or refreshes a routing-table entry, e.g. for a peer the
// handshake identified after a beacon (C3), a bootstrap endpoint (C4),
// or a remote announce.
func (n *Node) Insert(peer meshnet.PeerId, ep meshnet.Endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	if _, exists := n.routing[peer]; !exists && len(n.routing) >= maxRoutingTableSize {
		logger.Debug("routing table full, dropping insert", "peer", peer.String())
		return
	}
	rec := PeerRecord{PeerId: peer, Endpoint: ep}
	n.routing[peer] = rec
	n.recent.Add(peer, ep)
	if n.onInsert != nil {
		onInsert := n.onInsert
		go onInsert(rec)
	}
}

// Remove drops a routing-table entry (e.g. a disposed connection).
func (n *Node) Remove(peer meshnet.PeerId) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.routing, peer)
}

// Count reports the number of known routing-table peers.
func (n *Node) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.routing)
}

// RandomNode returns a uniformly-sampled known peer, used by the relay
// coordinator's client-side fill (spec §4.8).
func (n *Node) RandomNode() (PeerRecord, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, r := range n.routing { // Go map iteration order is randomized.
		return r, true
	}
	return PeerRecord{}, false
}

// ClosestPeers returns up to count routing-table peers ordered by XOR
// distance to key — the single piece of "Kademlia-style" behavior this
// stand-in implements, used to pick local single-hop query targets.
func (n *Node) ClosestPeers(key meshnet.NodeId, count int) []PeerRecord {
	n.mu.RLock()
	defer n.mu.RUnlock()

	type scored struct {
		rec PeerRecord
		d   meshnet.NodeId
	}
	all := make([]scored, 0, len(n.routing))
	for id, rec := range n.routing {
		all = append(all, scored{rec, meshnet.Distance(meshnet.NodeId(idToNode(id)), key)})
	}
	sort.Slice(all, func(i, j int) bool { return lessNodeId(all[i].d, all[j].d) })

	if count > len(all) {
		count = len(all)
	}
	out := make([]PeerRecord, count)
	for i := 0; i < count; i++ {
		out[i] = all[i].rec
	}
	return out
}

// StoreLocal records a self-announce (or a peer observed announcing) for
// networkId in this node's local share of the value store.
func (n *Node) StoreLocal(networkKey meshnet.NodeId, rec PeerRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	k := keyString(networkKey)
	m, ok := n.values[k]
	if !ok {
		m = make(map[meshnet.PeerId]valueEntry)
		n.values[k] = m
	}
	m[rec.PeerId] = valueEntry{record: rec, expires: time.Now().Add(recordTTL)}
}

// FindLocal returns this node's local share of the value store for
// networkKey, dropping expired entries.
func (n *Node) FindLocal(networkKey meshnet.NodeId) []PeerRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	k := keyString(networkKey)
	m, ok := n.values[k]
	if !ok {
		return nil
	}
	now := time.Now()
	out := make([]PeerRecord, 0, len(m))
	for id, e := range m {
		if now.After(e.expires) {
			delete(m, id)
			continue
		}
		out = append(out, e.record)
	}
	return out
}

// Close releases the node's in-memory state. The bind socket lifetime is
// owned by the caller (the local/internet listener), not by Node.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.routing = nil
	n.values = nil
	return nil
}

func keyString(id meshnet.NodeId) string { return string(id[:]) }

func idToNode(id meshnet.PeerId) [32]byte { return id }

func lessNodeId(a, b meshnet.NodeId) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
