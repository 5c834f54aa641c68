package transport

import "time"

// Per-kind dial timeouts (spec §4.1).
const (
	TimeoutLAN      = 2 * time.Second
	TimeoutInternet = 10 * time.Second
	TimeoutOverlay  = 30 * time.Second
)

// ProxyKind selects the proxy protocol used for internet-bound dials.
type ProxyKind int

const (
	ProxyNone ProxyKind = iota
	ProxyHTTP
	ProxySOCKS5
)

// ProxyConfig describes an optional configured outbound proxy (for the
// internet transports) distinct from the anonymity-overlay's own SOCKS5
// endpoint, which C9 owns.
type ProxyConfig struct {
	Kind    ProxyKind
	Address string // host:port
}

// Config bundles what Connect/Listen need from the node's configuration.
type Config struct {
	Proxy ProxyConfig

	// OverlaySOCKS5Addr is the anonymity overlay's local SOCKS5 listener
	// (spec §4.9: loopback, localPort+2). Empty when the overlay is
	// disabled.
	OverlaySOCKS5Addr string

	// OverlayOnly forces every dial through the overlay SOCKS5 endpoint,
	// even for endpoints that carry an ordinary IP address.
	OverlayOnly bool
}
