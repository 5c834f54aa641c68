// Package beacon implements the local-segment discovery beacon (spec
// §4.2, component C2): a 3-byte UDP packet announcing a node's
// local-segment DHT port, broadcast on IPv4 or sent to the well-known
// site-local multicast group FF12::1 on IPv6, always on UDP port 41988.
package beacon
