package handshake

import (
	"time"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// Persistent timeouts applied once a handshake succeeds (spec §4.6):
// idle reads fail after 120s, idle writes after 30s.
const (
	PersistentReadTimeout  = 120 * time.Second
	PersistentWriteTimeout = 30 * time.Second
)

// deadlineSetter is satisfied by net.Conn and anything else that exposes
// per-operation deadlines.
type deadlineSetter interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// timeoutStream refreshes the underlying connection's read/write
// deadline before every operation, turning one-shot deadlines into the
// "persistent timeout" spec §4.6 asks for.
type timeoutStream struct {
	meshnet.Stream
	ds deadlineSetter
}

func (t *timeoutStream) Read(p []byte) (int, error) {
	_ = t.ds.SetReadDeadline(time.Now().Add(PersistentReadTimeout))
	return t.Stream.Read(p)
}

func (t *timeoutStream) Write(p []byte) (int, error) {
	_ = t.ds.SetWriteDeadline(time.Now().Add(PersistentWriteTimeout))
	return t.Stream.Write(p)
}

// withPersistentTimeouts wraps s if it exposes deadlines; a stream that
// doesn't (e.g. a relay tunnel over an already-wrapped peer stream) is
// returned unchanged — best effort, not a correctness requirement.
func withPersistentTimeouts(s meshnet.Stream) meshnet.Stream {
	if ds, ok := s.(deadlineSetter); ok {
		return &timeoutStream{Stream: s, ds: ds}
	}
	return s
}
