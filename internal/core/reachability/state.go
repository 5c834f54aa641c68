package reachability

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/meshnet-io/meshconn/internal/core/netscan"
	"github.com/meshnet-io/meshconn/internal/pkg/log"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// Machine runs one IP family's reachability state machine (spec §4.7,
// component C7): a 60s timer plus on-demand single-shot re-checks,
// classifying connectivity and — for IPv4 — the UPnP sub-state.
type Machine struct {
	family meshnet.Family
	cfg    Config
	clock  clock.Clock
	client *http.Client

	recheck  chan struct{}
	closeCh  chan struct{}
	closeOne sync.Once
	wg       sync.WaitGroup

	mu               sync.Mutex
	state            meshnet.ReachabilityState
	upnpState        meshnet.UPnPState
	localLiveIP      net.IP
	upnpExternalIP   net.IP
	externalEndpoint *meshnet.Endpoint
}

// NewIPv4Machine builds the IPv4 family's machine (the only one that
// runs the UPnP sub-state).
func NewIPv4Machine(cfg Config, clk clock.Clock) *Machine {
	return newMachine(meshnet.AddrV4, cfg, clk)
}

// NewIPv6Machine builds the IPv6 family's machine (no UPnP; spec §4.7
// "IPv6 flow is simpler").
func NewIPv6Machine(cfg Config, clk clock.Clock) *Machine {
	return newMachine(meshnet.AddrV6, cfg, clk)
}

func newMachine(family meshnet.Family, cfg Config, clk clock.Clock) *Machine {
	return &Machine{
		family:    family,
		cfg:       cfg,
		clock:     clk,
		client:    &http.Client{Timeout: cfg.probeTimeout()},
		recheck:   make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
		state:     meshnet.Identifying,
		upnpState: meshnet.UPnPIdentifying,
	}
}

func (m *Machine) logger() *log.LazyLogger {
	if m.family == meshnet.AddrV4 {
		return ipv4Logger
	}
	return ipv6Logger
}

var (
	ipv4Logger = log.Logger("core/reachability/ipv4")
	ipv6Logger = log.Logger("core/reachability/ipv6")
)

// Run drives the periodic timer until Close is called. Intended to be
// launched as `go m.Run()`.
func (m *Machine) Run() {
	m.wg.Add(1)
	defer m.wg.Done()

	ticker := m.clock.Ticker(m.cfg.tickInterval())
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		m.tick(ctx)
		select {
		case <-ticker.C:
		case <-m.recheck:
		case <-m.closeCh:
			return
		}
	}
}

// ReCheckConnectivity triggers an immediate single-shot execution,
// coalesced if one is already pending (spec §4.7: "single-shot
// executions are also invoked on reCheckConnectivity()").
func (m *Machine) ReCheckConnectivity() {
	select {
	case m.recheck <- struct{}{}:
	default:
	}
}

func (m *Machine) Close() {
	m.closeOne.Do(func() { close(m.closeCh) })
	m.wg.Wait()
}

// State returns the current classification and UPnP sub-state. Readers
// may observe a stale value (spec §5: "single-writer ... readers may see
// stale values").
func (m *Machine) State() (meshnet.ReachabilityState, meshnet.UPnPState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.upnpState
}

// ExternalEndpoint returns the endpoint the rest of the system should
// advertise, per the "External endpoint derivation" rules in spec §4.7.
func (m *Machine) ExternalEndpoint() (meshnet.Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.externalEndpoint == nil {
		return meshnet.Endpoint{}, false
	}
	return *m.externalEndpoint, true
}

func (m *Machine) setState(s meshnet.ReachabilityState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Machine) setUPnP(s meshnet.UPnPState) {
	m.mu.Lock()
	m.upnpState = s
	m.mu.Unlock()
}

func (m *Machine) setExternalEndpoint(ep *meshnet.Endpoint) {
	m.mu.Lock()
	m.externalEndpoint = ep
	m.mu.Unlock()
}

// tick performs exactly one classification pass (spec §4.7 steps 1-6).
// Every internal error is absorbed here — the reachability machine never
// propagates (spec §7: "its only output is the updated state").
func (m *Machine) tick(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, m.cfg.probeTimeout()*4)
	defer cancel()

	prevState, prevUPnP := m.State()
	prevEndpoint, hadEndpoint := m.ExternalEndpoint()

	if m.cfg.ProxyKind != ProxyNone {
		m.tickProxy(ctx)
		return
	}

	iface := defaultInterface(m.family)
	if iface == nil {
		m.logger().Debug("no default interface for family")
		m.setState(meshnet.NoInternet)
		m.setUPnP(meshnet.UPnPDisabled)
		m.setExternalEndpoint(nil)
		return
	}

	ip := net.ParseIP(iface.LocalIP)
	if ip != nil && isPublicAddress(ip) {
		m.setState(meshnet.Direct)
		m.setUPnP(meshnet.UPnPDisabled)
		m.mu.Lock()
		m.localLiveIP = ip
		m.mu.Unlock()
	} else if m.family == meshnet.AddrV4 {
		m.tickIPv4NAT(ctx, iface)
	} else {
		m.setState(meshnet.NoInternet)
	}

	m.validate(ctx, prevState, prevUPnP, prevEndpoint, hadEndpoint, iface)
}

func (m *Machine) tickProxy(ctx context.Context) {
	m.setUPnP(meshnet.UPnPDisabled)
	if m.family == meshnet.AddrV4 {
		if m.cfg.ProxyKind == ProxyHTTP {
			m.setState(meshnet.HttpProxy)
		} else {
			m.setState(meshnet.Socks5Proxy)
		}
	}
	ok := m.proxyReachable(ctx) && webProbe(ctx, m.client, m.probeURL())
	if !ok {
		if m.cfg.ProxyKind == ProxyHTTP || m.cfg.ProxyKind == ProxySOCKS5 {
			m.setState(meshnet.ProxyFailed)
		} else {
			m.setState(meshnet.NoProxyInternet)
		}
		m.setExternalEndpoint(nil)
	}
}

// proxyReachable is a minimal TCP dial to the configured proxy address —
// the one network fact this module can check without delegating to the
// transport package (kept dependency-shallow, see config.go).
func (m *Machine) proxyReachable(ctx context.Context) bool {
	if m.cfg.ProxyAddress == "" {
		return false
	}
	d := net.Dialer{Timeout: m.cfg.probeTimeout()}
	conn, err := d.DialContext(ctx, "tcp", m.cfg.ProxyAddress)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// tickIPv4NAT implements spec §4.7 steps 4-5: the UPnP branch, reached
// only when the default interface has no public address.
func (m *Machine) tickIPv4NAT(ctx context.Context, iface *meshnet.NetworkInterfaceRecord) {
	if !m.cfg.UPnPEnabled {
		m.setState(meshnet.NatOrFirewalled)
		m.setUPnP(meshnet.UPnPDisabled)
		return
	}

	mapper, err := discoverIGD(ctx)
	if err != nil {
		m.logger().Debug("upnp gateway discovery failed", "err", err)
		if localIP := net.ParseIP(iface.LocalIP); localIP != nil && m.tickIPv4NATPMP(localIP) {
			return
		}
		m.setState(meshnet.NatOrFirewalled)
		m.setUPnP(meshnet.UPnPDeviceNotFound)
		return
	}

	extIP, err := mapper.externalIP()
	if err != nil || extIP == nil {
		m.setState(meshnet.NatOrFirewalled)
		m.setUPnP(meshnet.UPnPDeviceNotFound)
		return
	}

	// spec §8 boundary behavior: 0.0.0.0 means no internet at all, not a
	// NAT classification.
	if extIP.IsUnspecified() {
		m.setState(meshnet.NoInternet)
		m.setUPnP(meshnet.UPnPDeviceNotFound)
		return
	}

	// spec §8 boundary behavior: a private external IP stops here — no
	// port-forwarding attempt.
	if extIP.IsPrivate() {
		m.setState(meshnet.NatOrFirewalled)
		m.setUPnP(meshnet.UPnPExternalIpPrivate)
		return
	}

	localIP := net.ParseIP(iface.LocalIP)
	if err := mapper.mapPort(localIP, m.cfg.LocalPort); err != nil {
		m.setState(meshnet.NatOrFirewalled)
		m.setUPnP(meshnet.UPnPPortForwardingFailed)
		return
	}

	m.mu.Lock()
	m.upnpExternalIP = extIP
	m.mu.Unlock()
	m.setState(meshnet.NatViaUPnP)
	m.setUPnP(meshnet.UPnPPortForwarded)
}

// tickIPv4NATPMP is the NAT-PMP fallback attempted when no UPnP IGD
// answered. It reuses the UPnP sub-state enum for classification — from
// the application's point of view NAT-PMP and UPnP both just answer
// "is this gateway port-forwarding for us", so a separate state set
// would only duplicate meshnet.UPnPState. Returns false when NAT-PMP
// itself found nothing to report, leaving the caller's
// NatOrFirewalled/UPnPDeviceNotFound classification in place.
func (m *Machine) tickIPv4NATPMP(localIP net.IP) bool {
	gateway := guessGateway(localIP)
	if gateway == nil {
		return false
	}

	timeout := m.cfg.probeTimeout()
	extIP, err := natPMPExternalIP(gateway, timeout)
	if err != nil || extIP == nil {
		return false
	}

	if extIP.IsUnspecified() {
		m.setState(meshnet.NoInternet)
		m.setUPnP(meshnet.UPnPDeviceNotFound)
		return true
	}

	if extIP.IsPrivate() {
		m.setState(meshnet.NatOrFirewalled)
		m.setUPnP(meshnet.UPnPExternalIpPrivate)
		return true
	}

	if err := natPMPMapPort(gateway, m.cfg.LocalPort, timeout); err != nil {
		m.setState(meshnet.NatOrFirewalled)
		m.setUPnP(meshnet.UPnPPortForwardingFailed)
		return true
	}

	m.mu.Lock()
	m.upnpExternalIP = extIP
	m.mu.Unlock()
	m.setState(meshnet.NatViaUPnP)
	m.setUPnP(meshnet.UPnPPortForwarded)
	return true
}

// guessGateway assumes the conventional "router sits at .1" layout of a
// home /24 as the NAT-PMP probe target. None of the example repos carry
// a real default-gateway-discovery dependency (the teacher's own NAT-PMP
// code leans on github.com/jackpal/gateway, which is not present in any
// go.mod/go.sum in the retrieved pack — see DESIGN.md), so this heuristic
// stands in rather than fabricating that dependency.
func guessGateway(localIP net.IP) net.IP {
	v4 := localIP.To4()
	if v4 == nil {
		return nil
	}
	gw := make(net.IP, net.IPv4len)
	copy(gw, v4)
	gw[3] = 1
	return gw
}

// validate implements spec §4.7 step 6.
func (m *Machine) validate(ctx context.Context, prevState meshnet.ReachabilityState, prevUPnP meshnet.UPnPState, prevEndpoint meshnet.Endpoint, hadEndpoint bool, iface *meshnet.NetworkInterfaceRecord) {
	curState, curUPnP := m.State()

	candidate := m.deriveExternalEndpoint(iface)
	changed := curState != prevState || curUPnP != prevUPnP || !endpointsEqual(candidate, &prevEndpoint, hadEndpoint)
	if !changed {
		m.setExternalEndpoint(candidate)
		return
	}

	if !webProbe(ctx, m.client, m.probeURL()) {
		m.setExternalEndpoint(nil)
		return
	}

	if m.family != meshnet.AddrV4 || (curState != meshnet.Direct && curState != meshnet.NatOrFirewalled && curUPnP != meshnet.UPnPPortForwarded) {
		m.setExternalEndpoint(candidate)
		return
	}

	if m.cfg.IncomingCheckURL == "" {
		// No incoming check configured: treated as passing (config.go).
		m.setExternalEndpoint(candidate)
		return
	}

	result, err := runIncomingCheck(ctx, m.client, m.cfg.IncomingCheckURL, m.cfg.LocalPort)
	if err != nil || !result.ok {
		if curUPnP == meshnet.UPnPPortForwarded {
			m.setUPnP(meshnet.UPnPPortForwardedNotAccessible)
		}
		m.setExternalEndpoint(nil)
		return
	}
	m.setExternalEndpoint(&result.endpoint)
}

// deriveExternalEndpoint implements the "External endpoint derivation"
// rules verbatim (spec §4.7).
func (m *Machine) deriveExternalEndpoint(iface *meshnet.NetworkInterfaceRecord) *meshnet.Endpoint {
	state, upnp := m.State()
	if state == meshnet.Identifying {
		return nil
	}
	if m.family == meshnet.AddrV6 {
		if state != meshnet.Direct {
			return nil
		}
		ep := meshnet.NewV6(net.ParseIP(iface.LocalIP), m.cfg.LocalPort)
		return &ep
	}
	if state == meshnet.Direct {
		ep := meshnet.NewV4(net.ParseIP(iface.LocalIP), m.cfg.LocalPort)
		return &ep
	}
	if state == meshnet.NatViaUPnP && upnp == meshnet.UPnPPortForwarded {
		m.mu.Lock()
		extIP := m.upnpExternalIP
		m.mu.Unlock()
		ep := meshnet.NewV4(extIP, m.cfg.LocalPort)
		return &ep
	}
	// "in all other resolvable states, the endpoint returned by the
	// incoming-connection probe" — filled in by validate(), not here.
	return nil
}

func (m *Machine) probeURL() string {
	if m.family == meshnet.AddrV4 {
		return m.cfg.WebProbeIPv4URL
	}
	return m.cfg.WebProbeIPv6URL
}

func endpointsEqual(candidate *meshnet.Endpoint, prev *meshnet.Endpoint, hadPrev bool) bool {
	if candidate == nil {
		return !hadPrev
	}
	if !hadPrev {
		return false
	}
	return candidate.Equal(*prev)
}

// defaultInterface picks the first live interface matching family,
// reusing the existing netscan heuristic rather than a platform default-
// route lookup (see DESIGN.md for why jackpal/gateway was not wired).
func defaultInterface(family meshnet.Family) *meshnet.NetworkInterfaceRecord {
	for _, r := range netscan.Scan() {
		if r.Family == family {
			rec := r
			return &rec
		}
	}
	return nil
}

func isPublicAddress(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return false
	}
	return true
}
