package overlay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func TestStartWithoutControllerCommandFails(t *testing.T) {
	a := New(Config{LocalPort: 9000})
	_, err := a.Start(context.Background())
	assert.ErrorIs(t, err, ErrControllerNotConfigured)
}

func TestStartParsesReadyLineFromEcho(t *testing.T) {
	a := New(Config{
		LocalPort:         9000,
		ControllerCommand: []string{"sh", "-c", "echo abc123xyz.onion 9402"},
		StartTimeout:      5 * time.Second,
	})

	ep, err := a.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, meshnet.AddrUnspecified, ep.Family())
	assert.Equal(t, "abc123xyz.onion", ep.Domain())
	assert.Equal(t, uint16(9000), ep.Port())

	socks, ok := a.SOCKS5Endpoint()
	require.True(t, ok)
	assert.Equal(t, uint16(9402), socks.Port())

	onion, ok := a.OnionAddress()
	require.True(t, ok)
	assert.Equal(t, "abc123xyz.onion", onion)

	require.NoError(t, a.Stop())
}

func TestStartFailsOnMalformedReadyLine(t *testing.T) {
	a := New(Config{
		ControllerCommand: []string{"sh", "-c", "echo not-enough-fields"},
		StartTimeout:      5 * time.Second,
	})
	_, err := a.Start(context.Background())
	assert.ErrorIs(t, err, ErrMalformedReadyLine)
}

func TestStartFailsWhenProcessExitsWithoutOutput(t *testing.T) {
	a := New(Config{
		ControllerCommand: []string{"sh", "-c", "exit 0"},
		StartTimeout:      5 * time.Second,
	})
	_, err := a.Start(context.Background())
	assert.ErrorIs(t, err, ErrControllerExited)
}
