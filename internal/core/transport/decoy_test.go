package transport

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPDecoyRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientDone := make(chan error, 1)
	var clientStream io.ReadWriteCloser
	go func() {
		s, err := WrapHTTPDecoy(clientConn, RoleClient)
		if err == nil {
			clientStream = s
		}
		clientDone <- err
	}()

	serverStream, err := WrapHTTPDecoy(serverConn, RoleServer)
	require.NoError(t, err)
	require.NoError(t, <-clientDone)
	require.NotNil(t, clientStream)

	// After the decoy completes, arbitrary bytes must pass through
	// unchanged (spec §8 round trip).
	payload := []byte("peer-protocol-bytes")
	go func() {
		_, _ = clientStream.Write(payload)
	}()

	buf := make([]byte, len(payload))
	_, err = io.ReadFull(serverStream, buf)
	require.NoError(t, err)
	require.Equal(t, payload, buf)
}

func TestHTTPDecoyAbortsOnEarlyEOF(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	go func() {
		time.Sleep(10 * time.Millisecond)
		clientConn.Close()
	}()

	_, err := WrapHTTPDecoy(serverConn, RoleServer)
	require.Error(t, err)
}
