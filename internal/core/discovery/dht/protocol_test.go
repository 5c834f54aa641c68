package dht

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func mkPeerId(b byte) meshnet.PeerId {
	var id meshnet.PeerId
	id[0] = b
	return id
}

func TestFindPeersRoundTrip(t *testing.T) {
	key := meshnet.NodeId{1, 2, 3}
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, MsgFindPeers, EncodeFindPeers(key)))

	typ, payload, err := ReadMessage(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, MsgFindPeers, typ)

	got, err := DecodeFindPeers(payload)
	require.NoError(t, err)
	require.Equal(t, key, got)
}

func TestFindPeersRespRoundTrip(t *testing.T) {
	records := []PeerRecord{
		{PeerId: mkPeerId(1), Endpoint: meshnet.NewV4([]byte{1, 2, 3, 4}, 9000)},
		{PeerId: mkPeerId(2), Endpoint: meshnet.NewV6(bytes.Repeat([]byte{0xab}, 16), 9001)},
		{PeerId: mkPeerId(3), Endpoint: meshnet.NewDomain("abc.onion", 9002)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, MsgFindPeersResp, EncodeFindPeersResp(records)))

	typ, payload, err := ReadMessage(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, MsgFindPeersResp, typ)

	got, err := DecodeFindPeersResp(payload)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, r := range records {
		require.True(t, r.Endpoint.Equal(got[i].Endpoint))
		require.Equal(t, r.PeerId, got[i].PeerId)
	}
}

func TestAnnounceRoundTrip(t *testing.T) {
	key := meshnet.NodeId{9, 9, 9}
	self := PeerRecord{PeerId: mkPeerId(7), Endpoint: meshnet.NewV4([]byte{127, 0, 0, 1}, 1234)}

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, MsgAnnounce, EncodeAnnounce(key, self)))

	typ, payload, err := ReadMessage(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, MsgAnnounce, typ)

	gotKey, gotRec, err := DecodeAnnounce(payload)
	require.NoError(t, err)
	require.Equal(t, key, gotKey)
	require.Equal(t, self.PeerId, gotRec.PeerId)
	require.True(t, self.Endpoint.Equal(gotRec.Endpoint))
}
