package dht

import (
	"bufio"
	"errors"
	"io"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// Serve handles DHT protocol messages arriving on stream (the demux-
// shunted channel, spec §4.6) until the stream is closed or a malformed
// message is seen. Background loops never propagate errors (spec §7);
// Serve logs and returns rather than panicking the caller's accept loop.
func Serve(node *Node, stream meshnet.Stream) {
	r := bufio.NewReader(stream)
	for {
		typ, payload, err := ReadMessage(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("dht channel read failed", "err", err)
			}
			return
		}
		if err := handleOne(node, stream, typ, payload); err != nil {
			logger.Debug("dht channel handle failed", "type", typ, "err", err)
			return
		}
	}
}

func handleOne(node *Node, w io.Writer, typ MsgType, payload []byte) error {
	switch typ {
	case MsgFindPeers:
		key, err := DecodeFindPeers(payload)
		if err != nil {
			return err
		}
		records := node.FindLocal(key)
		return WriteMessage(w, MsgFindPeersResp, EncodeFindPeersResp(records))
	case MsgAnnounce:
		key, rec, err := DecodeAnnounce(payload)
		if err != nil {
			return err
		}
		node.StoreLocal(key, rec)
		node.Insert(rec.PeerId, rec.Endpoint)
		return WriteMessage(w, MsgAnnounceAck, nil)
	default:
		return ErrBadMessage
	}
}

// FindPeersRPC performs a single-hop find-peers query against a remote
// DHT node reached over stream.
func FindPeersRPC(stream meshnet.Stream, key meshnet.NodeId) ([]PeerRecord, error) {
	if err := WriteMessage(stream, MsgFindPeers, EncodeFindPeers(key)); err != nil {
		return nil, err
	}
	typ, payload, err := ReadMessage(bufio.NewReader(stream))
	if err != nil {
		return nil, err
	}
	if typ != MsgFindPeersResp {
		return nil, ErrBadMessage
	}
	return DecodeFindPeersResp(payload)
}

// AnnounceRPC performs a single-hop announce against a remote DHT node
// reached over stream.
func AnnounceRPC(stream meshnet.Stream, key meshnet.NodeId, self PeerRecord) error {
	if err := WriteMessage(stream, MsgAnnounce, EncodeAnnounce(key, self)); err != nil {
		return err
	}
	typ, _, err := ReadMessage(bufio.NewReader(stream))
	if err != nil {
		return err
	}
	if typ != MsgAnnounceAck {
		return ErrBadMessage
	}
	return nil
}
