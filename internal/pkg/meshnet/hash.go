package meshnet

import (
	"golang.org/x/crypto/blake2b"
	"lukechampine.com/blake3"
)

// NodeId is the 256-bit key space a DhtNodeHandle's routing table is
// organized around.
type NodeId [32]byte

// DeriveNodeId computes a DhtNodeHandle's local node id deterministically
// from its bind endpoint (spec §3: "owns ... a local node id derived from
// the bind endpoint"), so restarting on the same bind address keeps the
// same position in the keyspace.
func DeriveNodeId(bind Endpoint) NodeId {
	sum := blake2b.Sum256([]byte(bind.String()))
	return NodeId(sum)
}

// DeriveKey computes the DHT key used to find/announce peers in a given
// network (spec §4.4's find/announce fan-out). blake3 is used here
// because it is the hash already present in the teacher's dependency
// graph and well suited to short fixed-size keys on the hot query path.
func DeriveKey(n NetworkId) NodeId {
	return NodeId(blake3.Sum256(n.Bytes()))
}

// Distance is the XOR (Kademlia) distance between two ids, used by the
// DHT node's closest-peer ordering — the routing-table algorithm itself
// is out of scope (spec §1).
func Distance(a, b NodeId) NodeId {
	var out NodeId
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}
