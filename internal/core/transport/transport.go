package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"

	"github.com/meshnet-io/meshconn/internal/pkg/log"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

var logger = log.Logger("core/transport")

// Transport owns the shared proxy/overlay configuration for Connect and
// Listen (spec §4.1, component C1).
type Transport struct {
	cfg Config
}

// New creates a Transport bound to the given configuration.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg}
}

// timeoutFor returns the per-kind dial timeout (spec §4.1).
func timeoutFor(kind meshnet.TransportKind) time.Duration {
	switch kind {
	case meshnet.LocalNetwork:
		return TimeoutLAN
	case meshnet.AnonymityOverlay:
		return TimeoutOverlay
	default:
		return TimeoutInternet
	}
}

// Connect dials ep, selecting a concrete mechanism from kind:
//   - direct TCP when no proxy is configured and ep carries an IP address
//   - through the configured HTTP/SOCKS5 proxy when one is set
//   - through the anonymity overlay's SOCKS5 endpoint when ep's family is
//     Unspecified, or the transport is running overlay-only
//
// Failure yields meshnet.ErrUnreachable without retry; the caller decides
// whether to retry (spec §4.1).
func (t *Transport) Connect(ctx context.Context, ep meshnet.Endpoint, kind meshnet.TransportKind) (net.Conn, error) {
	timeout := timeoutFor(kind)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch {
	case ep.Family() == meshnet.AddrUnspecified || t.cfg.OverlayOnly:
		return t.connectViaOverlay(ctx, ep)
	case t.cfg.Proxy.Kind == ProxySOCKS5:
		return t.connectViaSOCKS5(ctx, t.cfg.Proxy.Address, ep)
	case t.cfg.Proxy.Kind == ProxyHTTP:
		return t.connectViaHTTPProxy(ctx, t.cfg.Proxy.Address, ep)
	default:
		return t.connectDirect(ctx, ep)
	}
}

func (t *Transport) connectDirect(ctx context.Context, ep meshnet.Endpoint) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", ep.String())
	if err != nil {
		logger.Debug("direct dial failed", "endpoint", ep.String(), "err", err)
		return nil, fmt.Errorf("%w: %v", meshnet.ErrUnreachable, err)
	}
	return conn, nil
}

func (t *Transport) connectViaSOCKS5(ctx context.Context, proxyAddr string, ep meshnet.Endpoint) (net.Conn, error) {
	if proxyAddr == "" {
		return nil, ErrNoProxyConfigured
	}
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", meshnet.ErrUnreachable, err)
	}
	return dialViaProxy(ctx, dialer, ep)
}

func (t *Transport) connectViaOverlay(ctx context.Context, ep meshnet.Endpoint) (net.Conn, error) {
	if t.cfg.OverlaySOCKS5Addr == "" {
		return nil, ErrNoProxyConfigured
	}
	dialer, err := proxy.SOCKS5("tcp", t.cfg.OverlaySOCKS5Addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", meshnet.ErrUnreachable, err)
	}
	return dialViaProxy(ctx, dialer, ep)
}

// connectViaHTTPProxy issues a CONNECT request through an HTTP proxy.
// This is distinct from the peer-to-peer HTTP decoy (decoy.go): here the
// CONNECT is a genuine proxy tunnel request, terminated by the proxy.
func (t *Transport) connectViaHTTPProxy(ctx context.Context, proxyAddr string, ep meshnet.Endpoint) (net.Conn, error) {
	if proxyAddr == "" {
		return nil, ErrNoProxyConfigured
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", meshnet.ErrUnreachable, err)
	}
	if _, err := fmt.Fprintf(conn, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", ep.String(), ep.String()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", meshnet.ErrUnreachable, err)
	}
	if err := readHTTPConnectResponse(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", meshnet.ErrUnreachable, err)
	}
	return conn, nil
}

// dialViaProxy adapts proxy.Dialer (which has no context-aware variant in
// golang.org/x/net/proxy) to ctx cancellation by racing the dial against
// ctx.Done().
func dialViaProxy(ctx context.Context, dialer proxy.Dialer, ep meshnet.Endpoint) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := dialer.Dial("tcp", ep.String())
		ch <- result{conn, err}
	}()
	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("%w: %v", meshnet.ErrUnreachable, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", meshnet.ErrUnreachable, r.err)
		}
		return r.conn, nil
	}
}
