package beacon

import "errors"

var (
	// ErrShortPacket is returned when a datagram is too small to be a beacon.
	ErrShortPacket = errors.New("beacon: packet too short")
)
