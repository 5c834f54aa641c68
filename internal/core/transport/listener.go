package transport

import (
	"bufio"
	"fmt"
	"net"
	"strings"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// Listener accepts inbound net.Conn streams. It holds one net.Listener:
// a dual-stack socket where the OS supports it, otherwise a single
// listener on the bind endpoint's own family. No second listener is
// opened for the other family.
type Listener struct {
	underlying []net.Listener
	conns      chan acceptResult
	closeCh    chan struct{}
}

type acceptResult struct {
	conn net.Conn
	err  error
}

// Listen binds bind.Port() on every available family. bind's own address
// family is advisory only — dual-stack binds ignore it when the OS
// supports listening on both families from one socket.
func Listen(bind meshnet.Endpoint) (*Listener, error) {
	l := &Listener{
		conns:   make(chan acceptResult, 16),
		closeCh: make(chan struct{}),
	}

	addr := fmt.Sprintf(":%d", bind.Port())
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		// Dual-stack bind failed (common when the OS has IPv6 disabled,
		// or only one family available); fall back to a single listener
		// on the endpoint's own family.
		network := "tcp4"
		if bind.Family() == meshnet.AddrV6 {
			network = "tcp6"
		}
		ln, err = net.Listen(network, addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrListenFailed, err)
		}
	}
	l.underlying = append(l.underlying, ln)
	l.acceptLoop(ln)
	return l, nil
}

func (l *Listener) acceptLoop(ln net.Listener) {
	go func() {
		for {
			conn, err := ln.Accept()
			select {
			case l.conns <- acceptResult{conn, err}:
			case <-l.closeCh:
				if conn != nil {
					conn.Close()
				}
				return
			}
			if err != nil {
				// Background accept loops never propagate (spec §7); a
				// permanent listener error still needs to stop this loop.
				return
			}
		}
	}()
}

// Accept returns the next inbound connection.
func (l *Listener) Accept() (net.Conn, error) {
	r, ok := <-l.conns
	if !ok {
		return nil, meshnet.ErrDisposed
	}
	return r.conn, r.err
}

// Addr returns the first underlying listener's address.
func (l *Listener) Addr() net.Addr {
	if len(l.underlying) == 0 {
		return nil
	}
	return l.underlying[0].Addr()
}

// Close stops accepting and releases every underlying socket — the
// canonical cancellation signal for the accept loop (spec §5).
func (l *Listener) Close() error {
	close(l.closeCh)
	var firstErr error
	for _, ln := range l.underlying {
		if err := ln.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	close(l.conns)
	return firstErr
}

func readHTTPConnectResponse(conn net.Conn) error {
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	if !strings.Contains(line, "200") {
		return fmt.Errorf("proxy CONNECT rejected: %s", strings.TrimSpace(line))
	}
	// Drain the remaining header lines up to the blank line.
	for {
		l, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		if strings.TrimRight(l, "\r\n") == "" {
			return nil
		}
	}
}
