package dht

import "errors"

var (
	ErrNodeClosed   = errors.New("dht: node closed")
	ErrNoSuchPeer   = errors.New("dht: no such peer")
	ErrBadMessage   = errors.New("dht: malformed protocol message")
)
