package meshnet

import (
	"encoding/binary"
	"fmt"
	"net"

	sha256 "github.com/minio/sha256-simd"
)

// Family tags an Endpoint's address family. AddrUnspecified marks a
// domain-name endpoint (the anonymity overlay's .onion-style targets),
// matching spec §3's "address family marker Unspecified".
type Family byte

const (
	AddrV4          Family = 0
	AddrV6          Family = 1
	AddrUnspecified Family = 2
)

func (f Family) String() string {
	switch f {
	case AddrV4:
		return "v4"
	case AddrV6:
		return "v6"
	case AddrUnspecified:
		return "unspecified"
	default:
		return "invalid"
	}
}

// Endpoint is a tagged union over an IPv4 socket address, an IPv6 socket
// address (scope-id always stripped), or a domain-name endpoint (spec §3).
// The zero value is not a valid endpoint; construct via NewV4/NewV6/NewDomain.
//
// Endpoints are compared structurally. IPv4-mapped IPv6 addresses are
// always normalized to their IPv4 form in the constructors, so the two
// representations never coexist in a registry (spec §8 boundary
// behavior).
type Endpoint struct {
	family Family
	v4     [4]byte
	v6     [16]byte
	domain string
	port   uint16
}

// NewV4 builds an IPv4 endpoint. If ip is an IPv4-mapped IPv6 address it
// is normalized transparently.
func NewV4(ip net.IP, port uint16) Endpoint {
	var e Endpoint
	e.family = AddrV4
	e.port = port
	if v4 := ip.To4(); v4 != nil {
		copy(e.v4[:], v4)
	}
	return e
}

// NewV6 builds an IPv6 endpoint. Scope id is never carried (spec §3: "with
// scope-id stripped before any comparison or storage"). If ip is actually
// an IPv4-mapped address, the result is normalized to an IPv4 Endpoint.
func NewV6(ip net.IP, port uint16) Endpoint {
	if v4 := ip.To4(); v4 != nil && ip.To16() != nil && isV4MappedForm(ip) {
		return NewV4(v4, port)
	}
	var e Endpoint
	e.family = AddrV6
	e.port = port
	if v6 := ip.To16(); v6 != nil {
		copy(e.v6[:], v6)
	}
	return e
}

// NewDomain builds a domain-name endpoint (anonymity-overlay onion target).
func NewDomain(domain string, port uint16) Endpoint {
	return Endpoint{family: AddrUnspecified, domain: domain, port: port}
}

// isV4MappedForm reports whether ip has an IPv4 form: either a native
// 4-byte address or a 16-byte ::ffff:a.b.c.d address. It does not tell
// the two apart; NewV6 normalizes both to an IPv4 Endpoint.
func isV4MappedForm(ip net.IP) bool {
	return ip.To4() != nil
}

func (e Endpoint) Family() Family { return e.family }
func (e Endpoint) Port() uint16   { return e.port }

// IP returns the net.IP form for V4/V6 endpoints; nil for Domain endpoints.
func (e Endpoint) IP() net.IP {
	switch e.family {
	case AddrV4:
		return net.IP(e.v4[:])
	case AddrV6:
		return net.IP(e.v6[:])
	default:
		return nil
	}
}

// Domain returns the domain name for a Domain endpoint; "" otherwise.
func (e Endpoint) Domain() string { return e.domain }

// Equal compares endpoints structurally.
func (e Endpoint) Equal(o Endpoint) bool {
	if e.family != o.family || e.port != o.port {
		return false
	}
	switch e.family {
	case AddrV4:
		return e.v4 == o.v4
	case AddrV6:
		return e.v6 == o.v6
	default:
		return e.domain == o.domain
	}
}

// IsPrivate reports whether the endpoint's address is a private/loopback
// /link-local/unique-local address. Domain endpoints are never private.
// Used by the connection registry's AllowNewConnection rule (spec §4.5).
func (e Endpoint) IsPrivate() bool {
	ip := e.IP()
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	return ip.IsPrivate()
}

func (e Endpoint) String() string {
	switch e.family {
	case AddrV4:
		return fmt.Sprintf("%s:%d", e.IP().String(), e.port)
	case AddrV6:
		return fmt.Sprintf("[%s]:%d", e.IP().String(), e.port)
	default:
		return fmt.Sprintf("%s:%d", e.domain, e.port)
	}
}

// Fingerprint returns a stable 32-byte hash of the endpoint, used as the
// synthetic routing-table key for bootstrap endpoints, which carry no
// PeerId — bookkeeping only, never part of the wire format.
func (e Endpoint) Fingerprint() [32]byte {
	h := sha256.New()
	h.Write([]byte{byte(e.family)})
	switch e.family {
	case AddrV4:
		h.Write(e.v4[:])
	case AddrV6:
		h.Write(e.v6[:])
	default:
		h.Write([]byte(e.domain))
	}
	var portBuf [2]byte
	binary.LittleEndian.PutUint16(portBuf[:], e.port)
	h.Write(portBuf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
