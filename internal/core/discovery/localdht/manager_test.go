package localdht

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func testIface() meshnet.NetworkInterfaceRecord {
	return meshnet.NetworkInterfaceRecord{
		Name:             "lo0test",
		LocalIP:          "127.0.0.1",
		BroadcastIP:      "127.255.255.255",
		InterfaceIndex:   1,
		Family:           meshnet.AddrV4,
		MulticastCapable: false,
	}
}

func TestManagerStartAndClose(t *testing.T) {
	mockClock := clock.NewMock()
	m, err := New(testIface(), mockClock)
	require.NoError(t, err)
	defer m.Close()

	require.Equal(t, meshnet.LocalNetwork, m.Node().Kind())
	require.NotZero(t, m.BindEndpoint().Port())
	require.NoError(t, m.Close())
}

func TestManagerNotifyPeerIdentifiedPopulatesRoutingTable(t *testing.T) {
	mockClock := clock.NewMock()
	m, err := New(testIface(), mockClock)
	require.NoError(t, err)
	defer m.Close()

	peer := meshnet.PeerId{1, 2, 3}
	ep := meshnet.NewV4([]byte{127, 0, 0, 1}, 9999)
	m.NotifyPeerIdentified(peer, ep)

	require.Equal(t, 1, m.Node().Count())
}

func TestManagerAnnounceLoopBurstDoesNotBlockOnMockClock(t *testing.T) {
	mockClock := clock.NewMock()
	m, err := New(testIface(), mockClock)
	require.NoError(t, err)
	defer m.Close()

	// Advance past the full beaconBurstCount-1 intervals; the announce
	// loop should not block or deadlock doing so.
	for i := 0; i < beaconBurstCount; i++ {
		mockClock.Add(beaconBurstInterval)
	}
	time.Sleep(10 * time.Millisecond) // let the goroutine observe the fired timers
}
