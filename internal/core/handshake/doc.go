// Package handshake implements the connection-initiate protocol (spec
// §4.6, component C6): the one-byte version demux, the peer handshake
// wire format, insert arbitration against the connection registry, and
// crossed-connect convergence.
package handshake
