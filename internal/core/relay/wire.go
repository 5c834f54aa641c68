package relay

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// MsgType tags a relay control sub-protocol frame (SPEC_FULL §6 NEW:
// "Relay control sub-protocol"). Frames only appear on a peer stream
// after the version-1 handshake has completed.
type MsgType byte

const (
	MsgHostNetworkRequest  MsgType = 0x01
	MsgHostNetworkAck      MsgType = 0x02
	MsgHostNetworkWithdraw MsgType = 0x03
	MsgTunnelRequest       MsgType = 0x04
	MsgTunnelAccept        MsgType = 0x05
	MsgTunnelReject        MsgType = 0x06
)

// maxFramePayload bounds a single control frame; nothing this protocol
// carries (a NetworkId, a PeerId, a reason byte) ever approaches this.
const maxFramePayload = 4096

// Frame is one decoded relay control message.
type Frame struct {
	Type    MsgType
	Payload []byte
}

// WriteFrame writes [msgType u8][length u16 LE][payload] to w.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > maxFramePayload {
		return ErrFrameTooLarge
	}
	header := make([]byte, 3)
	header[0] = byte(f.Type)
	binary.LittleEndian.PutUint16(header[1:], uint16(len(f.Payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(f.Payload) == 0 {
		return nil
	}
	_, err := w.Write(f.Payload)
	return err
}

// ReadFrame reads one frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, 3)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}
	length := binary.LittleEndian.Uint16(header[1:])
	if length > maxFramePayload {
		return Frame{}, ErrFrameTooLarge
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: MsgType(header[0]), Payload: payload}, nil
}

// EncodeNetworkID renders a NetworkId as [len u8][bytes], where len is 20
// or 32 and self-describes the variant (spec §3 data model).
func EncodeNetworkID(id meshnet.NetworkId) []byte {
	b := id.Bytes()
	out := make([]byte, 1+len(b))
	out[0] = byte(len(b))
	copy(out[1:], b)
	return out
}

// DecodeNetworkID parses the encoding EncodeNetworkID produces.
func DecodeNetworkID(b []byte) (meshnet.NetworkId, []byte, error) {
	if len(b) < 1 {
		return meshnet.NetworkId{}, nil, io.ErrUnexpectedEOF
	}
	n := int(b[0])
	if len(b) < 1+n {
		return meshnet.NetworkId{}, nil, io.ErrUnexpectedEOF
	}
	body := b[1 : 1+n]
	rest := b[1+n:]
	switch n {
	case 20:
		var arr [20]byte
		copy(arr[:], body)
		return meshnet.NewNetworkId160(arr), rest, nil
	case 32:
		var arr [32]byte
		copy(arr[:], body)
		return meshnet.NewNetworkId256(arr), rest, nil
	default:
		return meshnet.NetworkId{}, nil, fmt.Errorf("relay: unsupported network id width %d", n)
	}
}

// EncodeHostNetworkRequest/Withdraw share one payload shape: the
// NetworkId being hosted or released.
func EncodeHostNetworkRequest(id meshnet.NetworkId) []byte  { return EncodeNetworkID(id) }
func EncodeHostNetworkWithdraw(id meshnet.NetworkId) []byte { return EncodeNetworkID(id) }

func DecodeHostNetworkPayload(b []byte) (meshnet.NetworkId, error) {
	id, _, err := DecodeNetworkID(b)
	return id, err
}

// EncodeTunnelRequest renders { PeerId target, NetworkId (optional, 0-len
// if absent) }.
func EncodeTunnelRequest(target meshnet.PeerId, networkID *meshnet.NetworkId) []byte {
	out := make([]byte, 32, 33)
	copy(out, target[:])
	if networkID == nil {
		return append(out, 0)
	}
	return append(out, EncodeNetworkID(*networkID)...)
}

// DecodeTunnelRequest parses EncodeTunnelRequest's payload. networkID is
// nil when the request carried no NetworkId.
func DecodeTunnelRequest(b []byte) (target meshnet.PeerId, networkID *meshnet.NetworkId, err error) {
	if len(b) < 33 {
		return meshnet.PeerId{}, nil, io.ErrUnexpectedEOF
	}
	copy(target[:], b[:32])
	if b[32] == 0 {
		return target, nil, nil
	}
	id, _, err := DecodeNetworkID(b[32:])
	if err != nil {
		return meshnet.PeerId{}, nil, err
	}
	return target, &id, nil
}

func EncodeTunnelReject(reason TunnelRejectReason) []byte { return []byte{byte(reason)} }

func DecodeTunnelReject(b []byte) (TunnelRejectReason, error) {
	if len(b) < 1 {
		return 0, io.ErrUnexpectedEOF
	}
	return TunnelRejectReason(b[0]), nil
}
