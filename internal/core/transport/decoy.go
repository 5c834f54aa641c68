package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// Role distinguishes which side of the HTTP decoy handshake a stream plays.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// decoyRequest/decoyResponse are the cosmetic HTTP/1.1 exchange prepended
// to every peer-to-peer stream (spec §4.1) to make the stream
// indistinguishable from an ordinary HTTP exchange to a passive observer.
const (
	decoyRequest  = "CONNECT peer.mesh:443 HTTP/1.1\r\n\r\n"
	decoyResponse = "HTTP/1.1 200 OK\r\n\r\n"
)

// decoyStream wraps a net.Conn whose first bytes have been consumed by
// the HTTP decoy handshake; br retains any peer-protocol bytes the
// handshake scan read ahead of the CR/LF boundary.
type decoyStream struct {
	net.Conn
	br *bufio.Reader
}

func (d *decoyStream) Read(p []byte) (int, error) {
	return d.br.Read(p)
}

// WrapHTTPDecoy performs the HTTP decoy handshake over conn for the given
// role and returns a Stream whose Read/Write pass through the peer
// protocol once the decoy has unwrapped.
func WrapHTTPDecoy(conn net.Conn, role Role) (meshnet.Stream, error) {
	br := bufio.NewReader(conn)

	if role == RoleClient {
		if _, err := conn.Write([]byte(decoyRequest)); err != nil {
			return nil, fmt.Errorf("%w: %v", meshnet.ErrDecoyAborted, err)
		}
		if err := scanCRLFRun(br); err != nil {
			return nil, err
		}
	} else {
		if err := scanCRLFRun(br); err != nil {
			return nil, err
		}
		if _, err := conn.Write([]byte(decoyResponse)); err != nil {
			return nil, fmt.Errorf("%w: %v", meshnet.ErrDecoyAborted, err)
		}
	}

	return &decoyStream{Conn: conn, br: br}, nil
}

// scanCRLFRun reads bytes one at a time until four consecutive CR/LF
// bytes have been seen in sequence. Any other byte resets the counter to
// zero. End-of-stream before the run completes fails with
// meshnet.ErrDecoyAborted (spec §4.1).
func scanCRLFRun(r *bufio.Reader) error {
	run := 0
	for run < 4 {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return meshnet.ErrDecoyAborted
			}
			return fmt.Errorf("%w: %v", meshnet.ErrDecoyAborted, err)
		}
		if b == '\r' || b == '\n' {
			run++
		} else {
			run = 0
		}
	}
	return nil
}
