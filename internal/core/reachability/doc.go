// Package reachability implements the reachability state machine (spec
// §4.7, component C7): one machine per IP family, driven by a 60s timer
// plus on-demand re-checks, classifying the node's internet
// connectivity and — for IPv4 — the UPnP port-mapping sub-state.
package reachability
