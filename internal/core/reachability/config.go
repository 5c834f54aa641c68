package reachability

import "time"

// ProxyKind mirrors transport.ProxyKind without importing the transport
// package, keeping reachability's dependency graph shallow.
type ProxyKind int

const (
	ProxyNone ProxyKind = iota
	ProxyHTTP
	ProxySOCKS5
)

// Config bundles what both IP-family machines need (spec §4.7).
type Config struct {
	LocalPort uint16

	ProxyKind    ProxyKind
	ProxyAddress string

	UPnPEnabled bool

	// TickInterval is normally 60s; overridable for tests.
	TickInterval time.Duration

	// WebProbeIPv4URL, WebProbeIPv6URL and IncomingCheckURL are the unauthenticated
	// reachability-service endpoints used for validation (spec §4.7 step
	// 6, §6 "Incoming-connection web-check"). Empty disables the
	// corresponding probe (treated as success, since no core component
	// can fabricate that verification without a real service).
	WebProbeIPv4URL   string
	WebProbeIPv6URL   string
	IncomingCheckURL  string

	// ProbeTimeout bounds every web probe / UPnP SOAP call.
	ProbeTimeout time.Duration
}

func (c Config) tickInterval() time.Duration {
	if c.TickInterval > 0 {
		return c.TickInterval
	}
	return 60 * time.Second
}

func (c Config) probeTimeout() time.Duration {
	if c.ProbeTimeout > 0 {
		return c.ProbeTimeout
	}
	return 5 * time.Second
}
