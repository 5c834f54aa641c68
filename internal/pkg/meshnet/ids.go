package meshnet

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/mr-tron/base58"
)

// PeerId is a 256-bit opaque identifier generated uniformly at random at
// node startup and persisted for the node's lifetime (spec §3). Equality
// is bit-exact; it carries no authenticity binding.
type PeerId [32]byte

// NewPeerId generates a fresh, uniformly random peer id.
func NewPeerId() (PeerId, error) {
	var id PeerId
	if _, err := rand.Read(id[:]); err != nil {
		return PeerId{}, err
	}
	return id, nil
}

// IsZero reports whether p is the zero value (never a valid generated id,
// used as a sentinel in tests and for uninitialized fields).
func (p PeerId) IsZero() bool {
	return p == PeerId{}
}

// String renders the id as base58, the teacher corpus's convention for
// compact human-readable identifiers.
func (p PeerId) String() string {
	return base58.Encode(p[:])
}

// Hex renders the id as lowercase hex, useful for exact log-grepping.
func (p PeerId) Hex() string {
	return hex.EncodeToString(p[:])
}

// NetworkId names a hosted application network; a 160- or 256-bit
// identifier used as a DHT key both for "find peers in this network" and
// "announce self in this network" (spec §3).
type NetworkId struct {
	b [32]byte
	n int // 20 or 32
}

// NewNetworkId160 builds a 160-bit (20 byte) NetworkId.
func NewNetworkId160(b [20]byte) NetworkId {
	var nid NetworkId
	copy(nid.b[:], b[:])
	nid.n = 20
	return nid
}

// NewNetworkId256 builds a 256-bit (32 byte) NetworkId.
func NewNetworkId256(b [32]byte) NetworkId {
	return NetworkId{b: b, n: 32}
}

// Bytes returns the significant bytes of the id (20 or 32, per its width).
func (n NetworkId) Bytes() []byte {
	return n.b[:n.n]
}

// Len reports the id's width in bytes (20 or 32).
func (n NetworkId) Len() int {
	return n.n
}

func (n NetworkId) String() string {
	return base58.Encode(n.Bytes())
}

func (a NetworkId) Equal(b NetworkId) bool {
	if a.n != b.n {
		return false
	}
	return string(a.Bytes()) == string(b.Bytes())
}
