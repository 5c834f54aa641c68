// Package localdht implements the local-network DHT manager (spec §4.3,
// component C3): one instance per live non-loopback interface, owning a
// UDP beacon socket, a TCP DHT listener, and a DhtNodeHandle whose bind
// endpoint is the TCP listener's local address.
package localdht
