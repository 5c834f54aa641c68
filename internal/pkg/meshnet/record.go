package meshnet

import "io"

// Stream is the minimal bidirectional, closable byte stream every
// transport produces after connect/accept and (for peer streams) after
// the HTTP decoy has unwrapped. Concrete transports (net.Conn, relay
// tunnels) satisfy it directly.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// ConnectionRecord is the unit tracked by the connection registry (C5),
// spec §3.
type ConnectionRecord struct {
	PeerId             PeerId
	RemoteEndpoint     Endpoint
	IsVirtual          bool // established through a relay tunnel, not a direct TCP connection
	TCPRelayClientMode bool // this node has offloaded relay-based reachability to the remote peer
	Stream             Stream
}

// NetworkInterfaceRecord is a cached snapshot per physical interface
// (spec §3). Two records are equal iff LocalIP is equal.
type NetworkInterfaceRecord struct {
	Name             string
	LocalIP          string // canonical string form, used for equality
	BroadcastIP      string
	InterfaceIndex   int
	Family           Family
	MulticastCapable bool
}

// Equal implements the data-model equality rule: local IP equality only.
func (r NetworkInterfaceRecord) Equal(o NetworkInterfaceRecord) bool {
	return r.LocalIP == o.LocalIP
}
