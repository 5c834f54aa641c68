package meshconn

import (
	"time"

	"github.com/pbnjay/memory"
	watchdog "github.com/raulk/go-watchdog"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
	"github.com/meshnet-io/meshconn/internal/pkg/metrics"
)

const (
	metricsTickInterval = 10 * time.Second
	watchdogFrequency   = 15 * time.Second
	memoryTrimBatch     = 8
)

var reachabilityStates = []string{
	meshnet.Identifying.String(),
	meshnet.NoInternet.String(),
	meshnet.Direct.String(),
	meshnet.HttpProxy.String(),
	meshnet.Socks5Proxy.String(),
	meshnet.NatViaUPnP.String(),
	meshnet.NatOrFirewalled.String(),
	meshnet.Firewalled.String(),
	meshnet.ProxyFailed.String(),
	meshnet.NoProxyInternet.String(),
}

// metricsLoop keeps the Prometheus gauges in internal/pkg/metrics in
// sync with the registry, relay coordinator, and reachability machines.
// None of this is part of the mesh protocol; it is the ambient
// observability surface cmd/meshconnd exposes alongside it.
func (n *Node) metricsLoop() {
	ticker := time.NewTicker(metricsTickInterval)
	defer ticker.Stop()

	for {
		n.updateMetrics()
		select {
		case <-ticker.C:
		case <-n.closeCh:
			return
		}
	}
}

func (n *Node) updateMetrics() {
	real, virtual := n.registry.CountByKind()
	metrics.RegistrySize.WithLabelValues("real").Set(float64(real))
	metrics.RegistrySize.WithLabelValues("virtual").Set(float64(virtual))

	metrics.RelayClientCount.Set(float64(n.registry.RelayClientCount()))
	metrics.RelayHostedNetworks.Set(float64(n.relayCoord.HostedNetworkCount()))

	v4State, _ := n.reachability.IPv4.State()
	metrics.SetReachabilityState("ipv4", reachabilityStates, v4State.String())
	v6State, _ := n.reachability.IPv6.State()
	metrics.SetReachabilityState("ipv6", reachabilityStates, v6State.String())
}

// startMemoryWatchdog arms raulk/go-watchdog against the host's total
// memory and trims virtual (relayed) connections — the cheapest
// connections to drop, since their peers remain reachable through the
// tunnel's host — whenever it reports GC pressure.
func (n *Node) startMemoryWatchdog() {
	limit := memory.TotalMemory()
	if limit == 0 {
		logger.Debug("memory watchdog disabled, could not determine total system memory")
		return
	}

	policy := watchdog.NewAdaptivePolicy(0.5)
	if err, _ := watchdog.SystemDriven(limit, watchdogFrequency, policy); err != nil {
		logger.Debug("memory watchdog unavailable", "err", err)
		return
	}

	gcCh := make(chan struct{}, 1)
	watchdog.RegisterPostGCNotifee(func() {
		select {
		case gcCh <- struct{}{}:
		default:
		}
	})

	go func() {
		for {
			select {
			case <-gcCh:
				if trimmed := n.registry.TrimVirtual(memoryTrimBatch); trimmed > 0 {
					logger.Debug("trimmed virtual connections under memory pressure", "count", trimmed)
				}
			case <-n.closeCh:
				return
			}
		}
	}()
}
