package relay

import (
	"sync"

	arc "github.com/hashicorp/golang-lru/arc/v2"
	"github.com/spaolacci/murmur3"

	"github.com/meshnet-io/meshconn/internal/core/discovery/dht"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// candidatePoolSize bounds how many relay-client candidates are
// remembered between fill ticks.
const candidatePoolSize = 64

// candidatePool tracks relay-client candidates seen from the IPv4 DHT's
// routing table, backed by an adaptive-replacement cache so candidates
// that repeatedly fail to dial fall out faster than a plain LRU would
// evict them (SPEC_FULL domain stack: hashicorp/golang-lru/arc/v2).
type candidatePool struct {
	mu    sync.Mutex
	cache *arc.ARCCache[meshnet.PeerId, meshnet.Endpoint]
	seed  uint32
}

func newCandidatePool(seed uint32) (*candidatePool, error) {
	cache, err := arc.NewARC[meshnet.PeerId, meshnet.Endpoint](candidatePoolSize)
	if err != nil {
		return nil, err
	}
	return &candidatePool{cache: cache, seed: seed}, nil
}

func (p *candidatePool) observe(rec dht.PeerRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Add(rec.PeerId, rec.Endpoint)
}

// markFailed evicts a candidate that failed to dial, the ARC eviction
// signal the teacher's corpus uses this cache variant for.
func (p *candidatePool) markFailed(peer meshnet.PeerId) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Remove(peer)
}

// sample picks up to n candidates deterministically from round, a
// caller-supplied counter: murmur3-hashing (peer id, round) gives
// reproducible ordering across test runs without a real random source,
// while still being effectively unpredictable across distinct peer sets
// (SPEC_FULL domain stack: spaolacci/murmur3).
func (p *candidatePool) sample(round uint64, n int) []meshnet.PeerId {
	p.mu.Lock()
	keys := p.cache.Keys()
	p.mu.Unlock()

	if len(keys) == 0 {
		return nil
	}

	type scored struct {
		peer meshnet.PeerId
		h    uint32
	}
	scoredKeys := make([]scored, len(keys))
	for i, k := range keys {
		h := murmur3.Sum32WithSeed(append(k[:], roundBytes(round)...), p.seed)
		scoredKeys[i] = scored{peer: k, h: h}
	}
	for i := 1; i < len(scoredKeys); i++ {
		for j := i; j > 0 && scoredKeys[j].h < scoredKeys[j-1].h; j-- {
			scoredKeys[j], scoredKeys[j-1] = scoredKeys[j-1], scoredKeys[j]
		}
	}

	if n > len(scoredKeys) {
		n = len(scoredKeys)
	}
	out := make([]meshnet.PeerId, n)
	for i := 0; i < n; i++ {
		out[i] = scoredKeys[i].peer
	}
	return out
}

func (p *candidatePool) endpointFor(peer meshnet.PeerId) (meshnet.Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.Get(peer)
}

func roundBytes(round uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(round >> (8 * i))
	}
	return b
}
