package dht

import (
	"bufio"
	"fmt"
	"io"

	varint "github.com/multiformats/go-varint"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// Wire message types carried over the demux-shunted DHT TCP channel
// (spec §4.6: a leading 0x00 byte reassigns a peer stream to this
// protocol). Framing is [msgType byte][varint length][payload] — the one
// varint-framed wire format in the core (SPEC_FULL §6), everything else
// uses fixed-width fields.
type MsgType byte

const (
	MsgFindPeers     MsgType = 1
	MsgFindPeersResp MsgType = 2
	MsgAnnounce      MsgType = 3
	MsgAnnounceAck   MsgType = 4
)

// WriteMessage frames and writes one DHT protocol message.
func WriteMessage(w io.Writer, typ MsgType, payload []byte) error {
	if _, err := w.Write([]byte{byte(typ)}); err != nil {
		return err
	}
	lenBuf := varint.ToUvarint(uint64(len(payload)))
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadMessage reads one framed DHT protocol message.
func ReadMessage(r *bufio.Reader) (MsgType, []byte, error) {
	typByte, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	n, err := varint.ReadUvarint(r)
	if err != nil {
		return 0, nil, err
	}
	if n > 1<<20 {
		return 0, nil, fmt.Errorf("%w: payload too large (%d)", ErrBadMessage, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return MsgType(typByte), payload, nil
}

// EncodeFindPeers builds a FindPeers request payload.
func EncodeFindPeers(key meshnet.NodeId) []byte {
	return key[:]
}

func DecodeFindPeers(payload []byte) (meshnet.NodeId, error) {
	if len(payload) != 32 {
		return meshnet.NodeId{}, ErrBadMessage
	}
	var key meshnet.NodeId
	copy(key[:], payload)
	return key, nil
}

// EncodeFindPeersResp builds a FindPeersResp payload listing records.
func EncodeFindPeersResp(records []PeerRecord) []byte {
	buf := varint.ToUvarint(uint64(len(records)))
	for _, r := range records {
		buf = append(buf, encodeRecord(r)...)
	}
	return buf
}

func DecodeFindPeersResp(payload []byte) ([]PeerRecord, error) {
	r := newByteReader(payload)
	count, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	out := make([]PeerRecord, 0, count)
	for i := uint64(0); i < count; i++ {
		rec, err := decodeRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// EncodeAnnounce builds an Announce request payload: key then the
// announcing peer's own record.
func EncodeAnnounce(key meshnet.NodeId, self PeerRecord) []byte {
	return append(append([]byte{}, key[:]...), encodeRecord(self)...)
}

func DecodeAnnounce(payload []byte) (meshnet.NodeId, PeerRecord, error) {
	if len(payload) < 32 {
		return meshnet.NodeId{}, PeerRecord{}, ErrBadMessage
	}
	var key meshnet.NodeId
	copy(key[:], payload[:32])
	r := newByteReader(payload[32:])
	rec, err := decodeRecord(r)
	return key, rec, err
}

func encodeRecord(r PeerRecord) []byte {
	buf := make([]byte, 0, 48)
	buf = append(buf, r.PeerId[:]...)
	buf = append(buf, byte(r.Endpoint.Family()))
	switch r.Endpoint.Family() {
	case meshnet.AddrV4:
		ip := r.Endpoint.IP().To4()
		buf = append(buf, ip...)
	case meshnet.AddrV6:
		ip := r.Endpoint.IP().To16()
		buf = append(buf, ip...)
	default:
		d := []byte(r.Endpoint.Domain())
		buf = append(buf, varint.ToUvarint(uint64(len(d)))...)
		buf = append(buf, d...)
	}
	port := r.Endpoint.Port()
	buf = append(buf, byte(port), byte(port>>8))
	return buf
}

func decodeRecord(r *byteReader) (PeerRecord, error) {
	var id meshnet.PeerId
	if err := r.readFull(id[:]); err != nil {
		return PeerRecord{}, err
	}
	famByte, err := r.readByte()
	if err != nil {
		return PeerRecord{}, err
	}
	var ep meshnet.Endpoint
	switch meshnet.Family(famByte) {
	case meshnet.AddrV4:
		b := make([]byte, 4)
		if err := r.readFull(b); err != nil {
			return PeerRecord{}, err
		}
		port, err := r.readPort()
		if err != nil {
			return PeerRecord{}, err
		}
		ep = meshnet.NewV4(b, port)
	case meshnet.AddrV6:
		b := make([]byte, 16)
		if err := r.readFull(b); err != nil {
			return PeerRecord{}, err
		}
		port, err := r.readPort()
		if err != nil {
			return PeerRecord{}, err
		}
		ep = meshnet.NewV6(b, port)
	default:
		n, err := varint.ReadUvarint(r)
		if err != nil {
			return PeerRecord{}, err
		}
		b := make([]byte, n)
		if err := r.readFull(b); err != nil {
			return PeerRecord{}, err
		}
		port, err := r.readPort()
		if err != nil {
			return PeerRecord{}, err
		}
		ep = meshnet.NewDomain(string(b), port)
	}
	return PeerRecord{PeerId: id, Endpoint: ep}, nil
}
