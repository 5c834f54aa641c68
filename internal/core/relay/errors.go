package relay

import "errors"

var (
	ErrNoCandidates       = errors.New("relay: no relay candidates known")
	ErrRelayClientsFull   = errors.New("relay: relay-client list already at capacity")
	ErrUnknownMessageType = errors.New("relay: unknown control message type")
	ErrFrameTooLarge      = errors.New("relay: control frame exceeds maximum size")
	ErrTunnelRejected     = errors.New("relay: tunnel request rejected")
	ErrNoRouteToTarget    = errors.New("relay: no hosted connection to tunnel target")
)

// TunnelRejectReason is the single byte carried by a TunnelReject message.
type TunnelRejectReason byte

const (
	TunnelRejectNoRoute     TunnelRejectReason = 0
	TunnelRejectNotHosting  TunnelRejectReason = 1
	TunnelRejectBusy        TunnelRejectReason = 2
)
