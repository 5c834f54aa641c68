// Package transport implements the family-aware TCP connect/listen
// primitives and the HTTP-decoy stream wrapper (spec §4.1, component C1).
//
// Connect picks a concrete dial mechanism from the requested
// meshnet.TransportKind: a direct TCP dial when no proxy is configured and
// the endpoint is a plain IP address; through a configured HTTP/SOCKS5
// proxy when one is set; through the anonymity-overlay's SOCKS5 endpoint
// when the target's address family is Unspecified (a .onion-style domain)
// or the node is running overlay-only. Every dial carries an explicit
// timeout and never retries — callers decide whether and how to retry.
//
// Listen binds dual-stack where the OS supports it, otherwise falls back
// to a single listener on the bind endpoint's own address family; the
// other family is then not listened on.
package transport
