package handshake

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// Version byte values (spec §4.6).
const (
	VersionDemux byte = 0 // reassigns the stream to the DHT manager (§4.4)
	VersionPeer  byte = 1
)

// Response codes the server writes after insert arbitration.
const (
	ResponseAccept byte = 0
	ResponseCancel byte = 1
)

// Identity is the (peer id, service port) pair exchanged by both sides
// of the peer handshake.
type Identity struct {
	PeerId      meshnet.PeerId
	ServicePort uint16
}

// ReadVersion reads the one-byte version that begins every peer stream.
func ReadVersion(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteHello writes the client-initiate message: version=1, local peer
// id, local service port (spec §4.6 client step 1).
func WriteHello(w io.Writer, id Identity) error {
	buf := make([]byte, 0, 35)
	buf = append(buf, VersionPeer)
	buf = append(buf, id.PeerId[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, id.ServicePort)
	_, err := w.Write(buf)
	return err
}

// ReadPeerHello reads the 32-byte peer id and 2-byte service port that
// follow the version byte on the server side (spec §4.6 server step 3).
// The version byte itself must already have been consumed via
// ReadVersion.
func ReadPeerHello(r io.Reader) (Identity, error) {
	buf := make([]byte, 34)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Identity{}, err
	}
	var id Identity
	copy(id.PeerId[:], buf[:32])
	id.ServicePort = binary.LittleEndian.Uint16(buf[32:34])
	return id, nil
}

// WriteResponse writes the server's one-byte response code followed by
// its own peer id (spec §4.6 server step 4, client step 2).
func WriteResponse(w io.Writer, code byte, localPeerId meshnet.PeerId) error {
	buf := make([]byte, 0, 33)
	buf = append(buf, code)
	buf = append(buf, localPeerId[:]...)
	_, err := w.Write(buf)
	return err
}

// ReadResponse reads the response code and remote peer id the client
// expects back (spec §4.6 client step 2).
func ReadResponse(r io.Reader) (code byte, remotePeerId meshnet.PeerId, err error) {
	buf := make([]byte, 33)
	if _, err = io.ReadFull(r, buf); err != nil {
		return 0, meshnet.PeerId{}, err
	}
	code = buf[0]
	copy(remotePeerId[:], buf[1:33])
	return code, remotePeerId, nil
}

// rewritePort rebuilds ep with port substituted for its existing one,
// preserving family (spec §4.6 server step 3: "Rewrite remoteEndpoint so
// its port field equals the remote service port").
func rewritePort(ep meshnet.Endpoint, port uint16) meshnet.Endpoint {
	switch ep.Family() {
	case meshnet.AddrV4:
		return meshnet.NewV4(ep.IP(), port)
	case meshnet.AddrV6:
		return meshnet.NewV6(ep.IP(), port)
	default:
		return meshnet.NewDomain(ep.Domain(), port)
	}
}

func wrapBadHandshake(err error) error {
	return fmt.Errorf("%w: %v", meshnet.ErrBadHandshake, err)
}
