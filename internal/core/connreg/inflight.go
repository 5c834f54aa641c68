package connreg

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// InFlightSet is the per-endpoint "in flight" coalescing set (spec
// §4.6): it prevents two concurrent connect attempts to the same
// endpoint from racing into two TCP connects. The real-connection and
// virtual (tunneled) cases use two separate instances — "a parallel
// structure exists for virtual connections" (spec §4.6).
type InFlightSet struct {
	mu      sync.Mutex
	pending map[meshnet.Endpoint]chan struct{}
}

// NewInFlightSet constructs an empty set.
func NewInFlightSet() *InFlightSet {
	return &InFlightSet{pending: make(map[meshnet.Endpoint]chan struct{})}
}

// acquire reports whether the caller is the first (and therefore
// responsible for dialing) for ep. Callers that are not first receive a
// channel closed when the first caller releases.
func (s *InFlightSet) acquire(ep meshnet.Endpoint) (first bool, done <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.pending[ep]; ok {
		return false, ch
	}
	ch := make(chan struct{})
	s.pending[ep] = ch
	return true, ch
}

// release wakes every waiter on ep. Must be called exactly once by the
// first caller, regardless of dial outcome.
func (s *InFlightSet) release(ep meshnet.Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.pending[ep]; ok {
		delete(s.pending, ep)
		close(ch)
	}
}

// Coordinate runs the full in-flight-coalescing protocol for a connect
// attempt to ep. The first caller for ep runs dial(); every other caller
// waits (bounded by timeout) and then calls lookup() to retry the
// existence check, exactly as spec §4.6 describes ("waiters simply retry
// the existence check after waking"). A wait that times out fails with
// meshnet.ErrConnectInProgress.
func Coordinate(
	ctx context.Context,
	set *InFlightSet,
	clk clock.Clock,
	timeout time.Duration,
	ep meshnet.Endpoint,
	dial func() (*meshnet.ConnectionRecord, error),
	lookup func() (*meshnet.ConnectionRecord, bool),
) (*meshnet.ConnectionRecord, error) {
	first, done := set.acquire(ep)
	if first {
		defer set.release(ep)
		return dial()
	}

	timer := clk.Timer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		if rec, ok := lookup(); ok {
			return rec, nil
		}
		return nil, meshnet.ErrConnectInProgress
	case <-timer.C:
		return nil, meshnet.ErrConnectInProgress
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
