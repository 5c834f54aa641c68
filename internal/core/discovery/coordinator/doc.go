// Package coordinator implements the DHT manager (spec §4.4, component
// C4): the three transport-scoped DhtNodeHandles (IPv4, IPv6, and —
// when the anonymity overlay is enabled — the hidden-service domain),
// the bootstrap-blob fetch, the 15s local-interface network watcher, and
// the fan-out find/announce entry points the rest of the core calls
// into.
//
// It lives in its own package, separate from dht and localdht, because
// it depends on both: localdht already depends on dht for the per-
// interface DhtNodeHandle, so a manager that also needs localdht's
// per-interface Manager type cannot live inside either package without
// an import cycle.
package coordinator
