package coordinator

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/miekg/dns"
	varint "github.com/multiformats/go-varint"

	"github.com/meshnet-io/meshconn/internal/pkg/log"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

var bootstrapLogger = log.Logger("discovery/coordinator/bootstrap")

// defaultResolverAddr is the DNS resolver the bootstrap fetch uses
// instead of the process-wide default, so a misconfigured system
// resolver can never block the one DNS lookup this node makes on its own
// (spec §4.4 step 3; SPEC_FULL domain stack, miekg/dns).
const defaultResolverAddr = "1.1.1.1:53"

// EncodeBootstrapBlob builds the `[count u8][endpoint]*` bootstrap blob
// (spec §6). Each endpoint is family-tagged the same way a DHT PeerRecord
// endpoint is: `[family byte][addr][port u16 LE]` (domain endpoints carry
// a varint-length-prefixed name instead of a fixed address).
func EncodeBootstrapBlob(eps []meshnet.Endpoint) []byte {
	buf := []byte{byte(len(eps))}
	for _, ep := range eps {
		buf = append(buf, encodeBootstrapEndpoint(ep)...)
	}
	return buf
}

// DecodeBootstrapBlob parses a bootstrap blob into its endpoints.
func DecodeBootstrapBlob(b []byte) ([]meshnet.Endpoint, error) {
	if len(b) < 1 {
		return nil, ErrBootstrapBlobTooShort
	}
	count := int(b[0])
	r := &byteCursor{buf: b[1:]}
	out := make([]meshnet.Endpoint, 0, count)
	for i := 0; i < count; i++ {
		ep, err := decodeBootstrapEndpoint(r)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, nil
}

func encodeBootstrapEndpoint(ep meshnet.Endpoint) []byte {
	var buf []byte
	buf = append(buf, byte(ep.Family()))
	switch ep.Family() {
	case meshnet.AddrV4:
		buf = append(buf, ep.IP().To4()...)
	case meshnet.AddrV6:
		buf = append(buf, ep.IP().To16()...)
	default:
		d := []byte(ep.Domain())
		buf = append(buf, varint.ToUvarint(uint64(len(d)))...)
		buf = append(buf, d...)
	}
	port := ep.Port()
	buf = append(buf, byte(port), byte(port>>8))
	return buf
}

type byteCursor struct {
	buf []byte
	pos int
}

func (c *byteCursor) ReadByte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, ErrBootstrapBlobTooShort
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *byteCursor) readFull(dst []byte) error {
	if c.pos+len(dst) > len(c.buf) {
		return ErrBootstrapBlobTooShort
	}
	copy(dst, c.buf[c.pos:])
	c.pos += len(dst)
	return nil
}

func (c *byteCursor) readPort() (uint16, error) {
	var b [2]byte
	if err := c.readFull(b[:]); err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func decodeBootstrapEndpoint(r *byteCursor) (meshnet.Endpoint, error) {
	famByte, err := r.ReadByte()
	if err != nil {
		return meshnet.Endpoint{}, err
	}
	switch meshnet.Family(famByte) {
	case meshnet.AddrV4:
		b := make([]byte, 4)
		if err := r.readFull(b); err != nil {
			return meshnet.Endpoint{}, err
		}
		port, err := r.readPort()
		if err != nil {
			return meshnet.Endpoint{}, err
		}
		return meshnet.NewV4(b, port), nil
	case meshnet.AddrV6:
		b := make([]byte, 16)
		if err := r.readFull(b); err != nil {
			return meshnet.Endpoint{}, err
		}
		port, err := r.readPort()
		if err != nil {
			return meshnet.Endpoint{}, err
		}
		return meshnet.NewV6(b, port), nil
	default:
		n, err := varint.ReadUvarint(r)
		if err != nil {
			return meshnet.Endpoint{}, err
		}
		b := make([]byte, n)
		if err := r.readFull(b); err != nil {
			return meshnet.Endpoint{}, err
		}
		port, err := r.readPort()
		if err != nil {
			return meshnet.Endpoint{}, err
		}
		return meshnet.NewDomain(string(b), port), nil
	}
}

// fetchBootstrapBlob GETs rawURL and parses the response body as a
// bootstrap blob. DNS resolution for the URL's host goes through an
// explicit miekg/dns client rather than the process resolver.
func fetchBootstrapBlob(ctx context.Context, rawURL string) ([]meshnet.Endpoint, error) {
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: dialWithExplicitResolver,
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bootstrap fetch: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return nil, err
	}
	return DecodeBootstrapBlob(body)
}

func dialWithExplicitResolver(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if ip := net.ParseIP(host); ip != nil {
		var d net.Dialer
		return d.DialContext(ctx, network, addr)
	}

	ips, err := resolveHost(ctx, host)
	if err != nil || len(ips) == 0 {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
}

func resolveHost(ctx context.Context, host string) ([]net.IP, error) {
	client := &dns.Client{Timeout: 5 * time.Second}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)

	resp, _, err := client.ExchangeContext(ctx, msg, defaultResolverAddr)
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, ans := range resp.Answer {
		if a, ok := ans.(*dns.A); ok {
			ips = append(ips, a.A)
		}
	}
	if len(ips) == 0 {
		bootstrapLogger.Debug("no A records found", "host", host)
	}
	return ips, nil
}
