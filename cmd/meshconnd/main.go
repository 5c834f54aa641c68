// Command meshconnd runs one meshconn node: transport, discovery, the
// connection registry, the handshake protocol, relay, reachability, and
// (optionally) the anonymity-overlay adapter.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	meshconn "github.com/meshnet-io/meshconn"
	"github.com/meshnet-io/meshconn/config"
	"github.com/meshnet-io/meshconn/internal/pkg/log"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
	"github.com/meshnet-io/meshconn/internal/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "meshconnd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		localPort       = flag.Uint("port", 7734, "shared local service port")
		proxyKind       = flag.String("proxy", "", "outbound proxy kind: http, socks5, or empty for none")
		proxyAddress    = flag.String("proxy-addr", "", "outbound proxy address (host:port)")
		upnpEnabled     = flag.Bool("upnp", true, "attempt UPnP port forwarding when behind NAT")
		localDht        = flag.Bool("local-dht", true, "run the local-network discovery beacon and DHT")
		bootstrapURL    = flag.String("bootstrap-url", "", "HTTPS URL of the bootstrap endpoint blob")
		overlayEnabled  = flag.Bool("overlay", false, "start the anonymity-overlay adapter")
		overlayCommand  = flag.String("overlay-command", "", "space-separated overlay-controller command line")
		maxRelayClients = flag.Int("max-relay-clients", 3, "maximum peers to offload relay-based reachability to")
		webProbeIPv4    = flag.String("web-probe-ipv4-url", "", "IPv4 public-address validation probe URL")
		webProbeIPv6    = flag.String("web-probe-ipv6-url", "", "IPv6 public-address validation probe URL")
		incomingCheck   = flag.String("incoming-check-url", "", "incoming-connection web-check URL")
		metricsAddr     = flag.String("metrics-addr", "127.0.0.1:9734", "address to serve Prometheus metrics on, empty to disable")
		logLevel        = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	switch strings.ToLower(*logLevel) {
	case "debug":
		log.SetLevel(log.LevelDebug)
	case "warn":
		log.SetLevel(log.LevelWarn)
	case "error":
		log.SetLevel(log.LevelError)
	default:
		log.SetLevel(log.LevelInfo)
	}

	cfg := config.Config{
		LocalPort:                uint16(*localPort),
		UPnPEnabled:              *upnpEnabled,
		LocalDhtEnabled:          *localDht,
		BootstrapURL:             *bootstrapURL,
		OverlayEnabled:           *overlayEnabled,
		OverlayControllerCommand: strings.Fields(*overlayCommand),
		MaxRelayClients:          *maxRelayClients,
		WebProbeIPv4URL:          *webProbeIPv4,
		WebProbeIPv6URL:          *webProbeIPv6,
		IncomingCheckURL:         *incomingCheck,
	}

	switch strings.ToLower(*proxyKind) {
	case "http":
		cfg.ProxyKind = config.ProxyHTTP
		cfg.ProxyAddress = *proxyAddress
	case "socks5":
		cfg.ProxyKind = config.ProxySOCKS5
		cfg.ProxyAddress = *proxyAddress
	case "":
	default:
		return fmt.Errorf("unknown -proxy value %q", *proxyKind)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "meshconnd: received %v, shutting down\n", sig)
		cancel()
	}()

	node, err := meshconn.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building node: %w", err)
	}
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	defer node.Close()

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	fmt.Printf("meshconnd: running as %s on port %d\n", node.PeerId().String(), cfg.LocalPort)

	go reportStatus(ctx, node)

	<-ctx.Done()
	fmt.Println("meshconnd: stopped")
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "meshconnd: metrics server: %v\n", err)
	}
}

func reportStatus(ctx context.Context, node *meshconn.Node) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			real, virtual := node.ConnectionCount()
			v4, _, _ := node.ReachabilityState(meshnet.AddrV4)
			v6, _, _ := node.ReachabilityState(meshnet.AddrV6)
			fmt.Printf("meshconnd: connections real=%d virtual=%d relay-clients=%d ipv4=%s ipv6=%s\n",
				real, virtual, node.RelayClientCount(), v4, v6)
		}
	}
}
