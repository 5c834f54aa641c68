// Package metrics holds the process-wide Prometheus collectors shared by
// the node's components. None of this is part of the mesh protocol
// itself — it is the ambient observability surface a deployed node
// exposes alongside it.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RegistrySize is the connection registry's current size (spec §4.5,
	// component C5), split by real vs. virtual connections.
	RegistrySize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "meshconn",
		Subsystem: "connreg",
		Name:      "connections",
		Help:      "Number of tracked connections by kind.",
	}, []string{"kind"})

	// RelayClientCount mirrors connreg.Registry.RelayClientCount (spec §8
	// invariant 4, capped at 3).
	RelayClientCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "meshconn",
		Subsystem: "relay",
		Name:      "client_count",
		Help:      "Number of peers this node currently offloads relay-based reachability to.",
	})

	// RelayHostedNetworks is the relay coordinator's hosted-network
	// registry size (spec §4.8 server side).
	RelayHostedNetworks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "meshconn",
		Subsystem: "relay",
		Name:      "hosted_networks",
		Help:      "Number of distinct network ids this node is currently hosting for relay.",
	})

	// ReachabilityState is a 0/1 indicator gauge per (family, state) pair
	// — exactly one state per family is 1 at any time (spec §4.7).
	ReachabilityState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "meshconn",
		Subsystem: "reachability",
		Name:      "state",
		Help:      "Indicator (0/1) of the current reachability state per address family.",
	}, []string{"family", "state"})
)

// Registry is the collector registry the metrics HTTP endpoint (cmd/meshconnd)
// serves from. A dedicated registry, rather than prometheus.DefaultRegisterer,
// keeps test processes from panicking on duplicate registration across
// package-level test runs.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(RegistrySize, RelayClientCount, RelayHostedNetworks, ReachabilityState)
}

// SetReachabilityState zeroes every other state for family and sets state
// to 1, keeping the indicator gauge's invariant (spec §4.7: exactly one
// state active per family).
func SetReachabilityState(family string, states []string, current string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1.0
		}
		ReachabilityState.WithLabelValues(family, s).Set(v)
	}
}
