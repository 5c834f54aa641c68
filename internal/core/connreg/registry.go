package connreg

import (
	"sync"

	"github.com/meshnet-io/meshconn/internal/pkg/log"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

var logger = log.Logger("core/connreg")

// Registry is the connection registry (spec §4.5, component C5): two
// maps under a single lock, keyed by endpoint and by peer id, always
// referring to the same record for a given peer (spec §8 invariant 1).
type Registry struct {
	localPeerId meshnet.PeerId

	mu         sync.Mutex
	byEndpoint map[meshnet.Endpoint]*meshnet.ConnectionRecord
	byPeerId   map[meshnet.PeerId]*meshnet.ConnectionRecord

	// relayClients is the subset of byPeerId currently offloading relay-
	// based reachability to the remote peer (TCPRelayClientMode), capped
	// at 3 (spec §8 invariant 4). Membership here is maintained by the
	// relay coordinator (C8) via MarkRelayClient/disposal.
	relayClients map[meshnet.PeerId]struct{}

	disposeHooks []func(meshnet.PeerId)
}

// New constructs an empty Registry for localPeerId. localPeerId is never
// a valid key of byPeerId (spec §8 invariant 2).
func New(localPeerId meshnet.PeerId) *Registry {
	return &Registry{
		localPeerId:  localPeerId,
		byEndpoint:   make(map[meshnet.Endpoint]*meshnet.ConnectionRecord),
		byPeerId:     make(map[meshnet.PeerId]*meshnet.ConnectionRecord),
		relayClients: make(map[meshnet.PeerId]struct{}),
	}
}

// Insert runs the insert-arbitration algorithm (spec §4.5) for a newly
// handshaken connection and either installs it or reports why an
// existing record was kept. The returned record, when non-nil, is the
// record now current in the registry for rec's peer id — either rec
// itself or whichever existing record won arbitration.
//
// On DuplicateVirtual/DuplicateReal the caller (the handshake, C6) is
// expected to close the new stream and continue using the returned
// existing record.
func (r *Registry) Insert(rec meshnet.ConnectionRecord) (*meshnet.ConnectionRecord, error) {
	if rec.PeerId == r.localPeerId {
		return nil, meshnet.ErrSelfConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byEndpoint[rec.RemoteEndpoint]; ok {
		if existing.IsVirtual && !rec.IsVirtual {
			r.disposeLocked(existing)
		} else if rec.IsVirtual {
			return existing, meshnet.ErrDuplicateVirtual
		} else {
			// Both real, same endpoint: treat as a duplicate of the same
			// connection rather than re-running AllowNewConnection, which
			// is defined for two real connections via *different*
			// endpoints to the same peer.
			return existing, meshnet.ErrDuplicateReal
		}
	} else if existing, ok := r.byPeerId[rec.PeerId]; ok {
		switch {
		case existing.IsVirtual && !rec.IsVirtual:
			r.disposeLocked(existing)
		case rec.IsVirtual:
			return existing, meshnet.ErrDuplicateVirtual
		default:
			if AllowNewConnection(existing.RemoteEndpoint, rec.RemoteEndpoint) {
				r.disposeLocked(existing)
			} else {
				return existing, meshnet.ErrDuplicateReal
			}
		}
	}

	stored := rec
	r.byEndpoint[stored.RemoteEndpoint] = &stored
	r.byPeerId[stored.PeerId] = &stored
	return &stored, nil
}

// AllowNewConnection implements spec §4.5: two real connections to the
// same peer via different endpoints. The new connection wins iff the
// address families match and the existing endpoint is private — a
// public endpoint observed second supersedes a stale private one.
func AllowNewConnection(existingEp, newEp meshnet.Endpoint) bool {
	return existingEp.Family() == newEp.Family() && existingEp.IsPrivate()
}

// Lookup returns the current record for peer, if any.
func (r *Registry) Lookup(peer meshnet.PeerId) (*meshnet.ConnectionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byPeerId[peer]
	return rec, ok
}

// LookupEndpoint returns the current record for ep, if any.
func (r *Registry) LookupEndpoint(ep meshnet.Endpoint) (*meshnet.ConnectionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byEndpoint[ep]
	return rec, ok
}

// LookupEither resolves a connection by checking both endpoint and
// peer-id keys, the lookup the handshake performs after a cancel/
// duplicate response (spec §4.6 steps 3–4).
func (r *Registry) LookupEither(peer meshnet.PeerId, ep meshnet.Endpoint) (*meshnet.ConnectionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.byEndpoint[ep]; ok {
		return rec, true
	}
	if rec, ok := r.byPeerId[peer]; ok {
		return rec, true
	}
	return nil, false
}

// MarkRelayClient records that peer has offloaded relay-based
// reachability to the remote side, enforcing the ≤3 cap (spec §8
// invariant 4). Returns false if the cap is already reached and peer is
// not already a member.
func (r *Registry) MarkRelayClient(peer meshnet.PeerId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.relayClients[peer]; ok {
		return true
	}
	if len(r.relayClients) >= 3 {
		return false
	}
	r.relayClients[peer] = struct{}{}
	return true
}

// RelayClientCount reports the current relay-client list size.
func (r *Registry) RelayClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.relayClients)
}

// Size reports the total number of tracked connections, real and
// virtual. Exposed for the registry-size gauge (ambient metrics).
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byPeerId)
}

// CountByKind reports the number of real and virtual connections
// currently tracked. Exposed for the registry-size metrics gauge.
func (r *Registry) CountByKind() (real, virtual int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.byPeerId {
		if rec.IsVirtual {
			virtual++
		} else {
			real++
		}
	}
	return real, virtual
}

// TrimVirtual disposes up to n virtual (relayed) connections, the
// cheapest connections to drop under memory pressure since their peers
// remain reachable through the tunnel's host. Returns the number
// actually disposed. Called by the memory watchdog (spec §5 ambient
// addition).
func (r *Registry) TrimVirtual(n int) int {
	r.mu.Lock()
	var victims []*meshnet.ConnectionRecord
	for _, rec := range r.byPeerId {
		if len(victims) >= n {
			break
		}
		if rec.IsVirtual {
			victims = append(victims, rec)
		}
	}
	for _, rec := range victims {
		r.disposeLocked(rec)
	}
	r.mu.Unlock()
	return len(victims)
}

// AddDisposeHook registers fn to run, in its own goroutine, whenever a
// peer's record is removed from the registry — including disposals
// triggered by Insert's own arbitration, not just explicit Dispose
// calls. The relay coordinator (C8) uses this to withdraw a hosted
// network when the hosting peer's connection goes away for any reason.
func (r *Registry) AddDisposeHook(fn func(meshnet.PeerId)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposeHooks = append(r.disposeHooks, fn)
}

// Dispose removes peer's record from both maps and the relay-client
// list before the caller signals stream close (spec §4.5, §8 invariant
// 5): disposal completes before any further insert with the same
// peer-id may succeed, which holds here because the whole operation runs
// under r.mu.
func (r *Registry) Dispose(peer meshnet.PeerId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byPeerId[peer]
	if !ok {
		return
	}
	r.disposeLocked(rec)
}

// disposeLocked must be called with r.mu held.
func (r *Registry) disposeLocked(rec *meshnet.ConnectionRecord) {
	delete(r.byEndpoint, rec.RemoteEndpoint)
	delete(r.byPeerId, rec.PeerId)
	delete(r.relayClients, rec.PeerId)
	if rec.Stream != nil {
		if err := rec.Stream.Close(); err != nil {
			logger.Debug("stream close during disposal failed", "peer", rec.PeerId.String(), "err", err)
		}
	}
	for _, hook := range r.disposeHooks {
		hook := hook
		go hook(rec.PeerId)
	}
}
