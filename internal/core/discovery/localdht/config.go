package localdht

import "time"

// Beacon timing (spec §4.3): up to beaconBurstCount sends spaced
// beaconBurstInterval apart, then a steady-state re-arm of
// beaconReannounceInterval, but only while the node still knows fewer than
// beaconReannounceMinPeers peers in its local-network routing table.
const (
	beaconBurstCount        = 3
	beaconBurstInterval     = 2 * time.Second
	beaconReannounceInterval = 60 * time.Second
	beaconReannounceMinPeers = 2
)

// udpReadBufferSize bounds a single beacon datagram read. Beacon packets
// are 3 bytes (spec §6); this leaves generous headroom for stray traffic
// landing on the same socket without growing unboundedly.
const udpReadBufferSize = 512
