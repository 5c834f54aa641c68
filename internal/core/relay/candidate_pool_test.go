package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/core/discovery/dht"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func mkPeerRecord(b byte, port uint16) dht.PeerRecord {
	var id meshnet.PeerId
	id[0] = b
	return dht.PeerRecord{PeerId: id, Endpoint: meshnet.NewV4([]byte{127, 0, 0, 1}, port)}
}

func TestCandidatePoolSampleIsDeterministicForSameRound(t *testing.T) {
	pool, err := newCandidatePool(7)
	require.NoError(t, err)

	for i := byte(1); i <= 10; i++ {
		pool.observe(mkPeerRecord(i, 9000+uint16(i)))
	}

	first := pool.sample(1, 3)
	second := pool.sample(1, 3)
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}

func TestCandidatePoolSampleVariesAcrossRounds(t *testing.T) {
	pool, err := newCandidatePool(7)
	require.NoError(t, err)
	for i := byte(1); i <= 10; i++ {
		pool.observe(mkPeerRecord(i, 9000+uint16(i)))
	}

	a := pool.sample(1, 10)
	b := pool.sample(2, 10)
	assert.NotEqual(t, a, b)
}

func TestCandidatePoolMarkFailedEvicts(t *testing.T) {
	pool, err := newCandidatePool(1)
	require.NoError(t, err)
	rec := mkPeerRecord(5, 9005)
	pool.observe(rec)

	_, ok := pool.endpointFor(rec.PeerId)
	require.True(t, ok)

	pool.markFailed(rec.PeerId)
	_, ok = pool.endpointFor(rec.PeerId)
	assert.False(t, ok)
}

func TestCandidatePoolSampleEmptyPool(t *testing.T) {
	pool, err := newCandidatePool(1)
	require.NoError(t, err)
	assert.Empty(t, pool.sample(1, 5))
}
