// Package dht implements the per-transport DHT node handle (meshnet's
// DhtNodeHandle, spec §3). The transport-scoped manager that owns one
// per TransportKind (spec §4.4, component C4) is in package coordinator.
//
// The Kademlia-style routing-table algorithm itself is explicitly out of
// scope per spec.md §1 ("assumed" as an external collaborator); Node
// below is the minimal stand-in the rest of the core needs to exercise:
// a bounded routing table plus a single-hop find/announce RPC over the
// DHT TCP channel. It is deliberately not a faithful multi-hop Kademlia
// implementation.
package dht
