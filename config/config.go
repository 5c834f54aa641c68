// Package config bundles every component's construction parameters into
// one root Config struct, populated by the embedding application or the
// meshconnd CLI, and translated into each component's own Config type by
// the ConfigFromUnified functions below — one per component, following
// the same split the rest of this module uses (a package-local Config
// plus a node-level translation step) rather than a single monolithic
// struct threaded through every constructor.
package config

import (
	"fmt"
	"time"

	"github.com/meshnet-io/meshconn/internal/core/discovery/coordinator"
	"github.com/meshnet-io/meshconn/internal/core/overlay"
	"github.com/meshnet-io/meshconn/internal/core/reachability"
	"github.com/meshnet-io/meshconn/internal/core/relay"
	"github.com/meshnet-io/meshconn/internal/core/transport"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// ProxyKind mirrors transport.ProxyKind so this package does not have to
// import transport's internal naming into the CLI/embedder-facing surface.
type ProxyKind int

const (
	ProxyNone ProxyKind = iota
	ProxyHTTP
	ProxySOCKS5
)

// Config is the single root configuration struct for a meshconn node:
// transports enabled, proxy settings, bootstrap URL, UPnP on/off, overlay
// enabled, listen ports, timeouts. One value of Config is all the CLI or
// an embedding application needs to supply.
type Config struct {
	// LocalPort is the shared local service port P every component binds
	// or advertises relative to (spec §1, §4.1-§4.9).
	LocalPort uint16

	// Proxy optionally routes internet-bound dials through an HTTP or
	// SOCKS5 proxy (spec §4.1).
	ProxyKind    ProxyKind
	ProxyAddress string

	// UPnPEnabled drives the IPv4 reachability machine's UPnP substate
	// (spec §4.7). Disabled automatically when Proxy is configured.
	UPnPEnabled bool

	// LocalDhtEnabled starts the network watcher and per-interface local
	// DHT managers (spec §4.3, §4.4).
	LocalDhtEnabled bool

	// BootstrapURL is the well-known HTTPS URL the bootstrap blob is
	// fetched from at startup (spec §4.4, §6).
	BootstrapURL string

	// OverlayEnabled starts the anonymity-overlay adapter and the third,
	// onion-bound DHT node (spec §4.9).
	OverlayEnabled bool
	// OverlayControllerCommand launches the external overlay-controller
	// process; required when OverlayEnabled is true.
	OverlayControllerCommand []string

	// MaxRelayClients bounds how many peers this node offloads relay-
	// based reachability to (spec §8 invariant 4, default 3).
	MaxRelayClients int

	// WebProbeIPv4URL/WebProbeIPv6URL back the reachability machine's
	// public-address validation step (spec §4.7 step 6). Empty disables
	// that probe for the corresponding family.
	WebProbeIPv4URL string
	WebProbeIPv6URL string
	// IncomingCheckURL backs the incoming-connection web check (spec §6).
	IncomingCheckURL string

	// DialTimeout, BootstrapFetchTimeout, ReachabilityTickInterval, and
	// NetworkWatcherInterval override the component-local defaults;
	// zero means "use that component's own default".
	DialTimeout              time.Duration
	BootstrapFetchTimeout    time.Duration
	ReachabilityTickInterval time.Duration
	NetworkWatcherInterval   time.Duration
}

// Validate rejects configurations no component could start from.
func (c Config) Validate() error {
	if c.LocalPort == 0 {
		return fmt.Errorf("config: LocalPort must be nonzero")
	}
	if c.OverlayEnabled && len(c.OverlayControllerCommand) == 0 {
		return fmt.Errorf("config: OverlayEnabled requires OverlayControllerCommand")
	}
	switch c.ProxyKind {
	case ProxyNone, ProxyHTTP, ProxySOCKS5:
	default:
		return fmt.Errorf("config: unknown ProxyKind %d", c.ProxyKind)
	}
	if (c.ProxyKind == ProxyHTTP || c.ProxyKind == ProxySOCKS5) && c.ProxyAddress == "" {
		return fmt.Errorf("config: ProxyKind set without ProxyAddress")
	}
	return nil
}

// TransportConfigFromUnified translates Config into transport.Config
// (component C1).
func TransportConfigFromUnified(c Config) transport.Config {
	tc := transport.Config{}
	switch c.ProxyKind {
	case ProxyHTTP:
		tc.Proxy = transport.ProxyConfig{Kind: transport.ProxyHTTP, Address: c.ProxyAddress}
	case ProxySOCKS5:
		tc.Proxy = transport.ProxyConfig{Kind: transport.ProxySOCKS5, Address: c.ProxyAddress}
	}
	if c.OverlayEnabled {
		tc.OverlaySOCKS5Addr = fmt.Sprintf("127.0.0.1:%d", c.LocalPort+2)
	}
	return tc
}

// ReachabilityConfigFromUnified translates Config into reachability.Config
// (component C7). Both family machines share one Config value; UPnPEnabled
// only ever affects the IPv4 machine (state.go never consults it for IPv6).
func ReachabilityConfigFromUnified(c Config) reachability.Config {
	proxyKind := reachability.ProxyNone
	switch c.ProxyKind {
	case ProxyHTTP:
		proxyKind = reachability.ProxyHTTP
	case ProxySOCKS5:
		proxyKind = reachability.ProxySOCKS5
	}
	return reachability.Config{
		LocalPort:        c.LocalPort,
		ProxyKind:        proxyKind,
		ProxyAddress:     c.ProxyAddress,
		UPnPEnabled:      c.UPnPEnabled && proxyKind == reachability.ProxyNone,
		TickInterval:     c.ReachabilityTickInterval,
		WebProbeIPv4URL:  c.WebProbeIPv4URL,
		WebProbeIPv6URL:  c.WebProbeIPv6URL,
		IncomingCheckURL: c.IncomingCheckURL,
	}
}

// CoordinatorConfigFromUnified translates Config into coordinator.Config
// (component C4). overlayDomainEndpoint is the onion endpoint the overlay
// adapter (C9) reported; required when c.OverlayEnabled is true, ignored
// otherwise.
func CoordinatorConfigFromUnified(c Config, overlayDomainEndpoint meshnet.Endpoint) coordinator.Config {
	return coordinator.Config{
		LocalPort:              c.LocalPort,
		LocalDhtEnabled:        c.LocalDhtEnabled,
		OverlayEnabled:         c.OverlayEnabled,
		OverlayDomainEndpoint:  overlayDomainEndpoint,
		BootstrapURL:           c.BootstrapURL,
		BootstrapFetchTimeout:  c.BootstrapFetchTimeout,
		NetworkWatcherInterval: c.NetworkWatcherInterval,
	}
}

// RelayConfigFromUnified translates Config into relay.Config (component
// C8).
func RelayConfigFromUnified(c Config) relay.Config {
	return relay.Config{
		LocalPort:       c.LocalPort,
		MaxRelayClients: c.MaxRelayClients,
		DialTimeout:     c.DialTimeout,
	}
}

// OverlayConfigFromUnified translates Config into overlay.Config
// (component C9).
func OverlayConfigFromUnified(c Config) overlay.Config {
	return overlay.Config{
		LocalPort:         c.LocalPort,
		ControllerCommand: c.OverlayControllerCommand,
	}
}
