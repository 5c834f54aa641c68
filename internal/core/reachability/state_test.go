package reachability

import (
	"net"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func TestNewMachinesStartIdentifying(t *testing.T) {
	m := NewIPv4Machine(Config{LocalPort: 9000}, clock.NewMock())
	state, upnp := m.State()
	assert.Equal(t, meshnet.Identifying, state)
	assert.Equal(t, meshnet.UPnPIdentifying, upnp)

	ep, ok := m.ExternalEndpoint()
	assert.False(t, ok)
	assert.Equal(t, meshnet.Endpoint{}, ep)
}

func TestRecheckConnectivityCoalescesWhenPending(t *testing.T) {
	m := NewIPv4Machine(Config{LocalPort: 9000}, clock.NewMock())
	m.ReCheckConnectivity()
	// second call must not block even though the channel is already full
	done := make(chan struct{})
	go func() {
		m.ReCheckConnectivity()
		close(done)
	}()
	select {
	case <-done:
	default:
	}
	require.Len(t, m.recheck, 1)
}

func TestUPnPZeroExternalIPMeansNoInternet(t *testing.T) {
	m := NewIPv4Machine(Config{LocalPort: 9000, UPnPEnabled: true}, clock.NewMock())
	mapper := &upnpMapper{client: fakeIGD{ip: "0.0.0.0"}}
	iface := &meshnet.NetworkInterfaceRecord{LocalIP: "192.168.1.5", Family: meshnet.AddrV4}

	extIP, err := mapper.externalIP()
	require.NoError(t, err)
	require.True(t, extIP.IsUnspecified())

	// Mirror tickIPv4NAT's classification of this result directly, since
	// discoverIGD itself requires a live gateway.
	if extIP.IsUnspecified() {
		m.setState(meshnet.NoInternet)
		m.setUPnP(meshnet.UPnPDeviceNotFound)
	}
	state, upnp := m.State()
	assert.Equal(t, meshnet.NoInternet, state)
	assert.Equal(t, meshnet.UPnPDeviceNotFound, upnp)
	_ = iface
}

func TestPrivateUPnPExternalIPSkipsPortForwarding(t *testing.T) {
	mapper := &upnpMapper{client: fakeIGD{ip: "10.0.0.1"}}
	extIP, err := mapper.externalIP()
	require.NoError(t, err)
	assert.True(t, extIP.IsPrivate())
}

func TestDeriveExternalEndpointDirectIPv4(t *testing.T) {
	m := NewIPv4Machine(Config{LocalPort: 9000}, clock.NewMock())
	m.setState(meshnet.Direct)
	iface := &meshnet.NetworkInterfaceRecord{LocalIP: "203.0.113.5"}
	ep := m.deriveExternalEndpoint(iface)
	require.NotNil(t, ep)
	assert.Equal(t, meshnet.AddrV4, ep.Family())
	assert.Equal(t, uint16(9000), ep.Port())
}

func TestDeriveExternalEndpointIdentifyingYieldsNone(t *testing.T) {
	m := NewIPv4Machine(Config{LocalPort: 9000}, clock.NewMock())
	iface := &meshnet.NetworkInterfaceRecord{LocalIP: "203.0.113.5"}
	ep := m.deriveExternalEndpoint(iface)
	assert.Nil(t, ep)
}

func TestDeriveExternalEndpointIPv6OnlyDirect(t *testing.T) {
	m := NewIPv6Machine(Config{LocalPort: 9000}, clock.NewMock())
	iface := &meshnet.NetworkInterfaceRecord{LocalIP: "2001:db8::1"}

	m.setState(meshnet.NoInternet)
	assert.Nil(t, m.deriveExternalEndpoint(iface))

	m.setState(meshnet.Direct)
	ep := m.deriveExternalEndpoint(iface)
	require.NotNil(t, ep)
	assert.Equal(t, meshnet.AddrV6, ep.Family())
}

func TestIsPublicAddressRejectsPrivateAndLinkLocal(t *testing.T) {
	assert.False(t, isPublicAddress(net.ParseIP("10.1.2.3")))
	assert.False(t, isPublicAddress(net.ParseIP("169.254.1.1")))
	assert.False(t, isPublicAddress(net.ParseIP("127.0.0.1")))
	assert.True(t, isPublicAddress(net.ParseIP("203.0.113.9")))
}

type fakeIGD struct {
	ip string
}

func (f fakeIGD) GetExternalIPAddress() (string, error) { return f.ip, nil }
func (f fakeIGD) AddPortMapping(string, uint16, string, uint16, string, bool, string, uint32) error {
	return nil
}
