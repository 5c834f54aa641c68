package beacon

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/meshnet-io/meshconn/internal/pkg/log"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

var logger = log.Logger("discovery/beacon")

// Port is the well-known UDP port the beacon is sent/received on, for both
// the IPv4 broadcast and the IPv6 multicast variants (spec §4.2).
const Port = 41988

// Version is the only beacon wire version this implementation understands.
const Version = 1

// IPv6Group is the well-known site-local multicast group used for the
// IPv6 beacon (spec §4.2).
var IPv6Group = net.ParseIP("ff12::1")

// Encode produces the 3-byte beacon packet: [version=1][dhtPort LE u16]
// (spec §6).
func Encode(dhtPort uint16) []byte {
	buf := make([]byte, 3)
	buf[0] = Version
	binary.LittleEndian.PutUint16(buf[1:], dhtPort)
	return buf
}

// Decode parses a beacon packet, returning the advertised DHT port.
// Returns meshnet.ErrUnsupportedBeaconVersion if the version byte isn't 1
// (spec §4.2, §6).
func Decode(b []byte) (uint16, error) {
	if len(b) < 3 {
		return 0, ErrShortPacket
	}
	if b[0] != Version {
		return 0, fmt.Errorf("%w: got %d", meshnet.ErrUnsupportedBeaconVersion, b[0])
	}
	return binary.LittleEndian.Uint16(b[1:3]), nil
}

// EndpointFromDatagram combines the sender's observed IP (from the UDP
// datagram) with the advertised port to form a peer DHT endpoint (spec
// §4.2).
func EndpointFromDatagram(senderIP net.IP, dhtPort uint16) meshnet.Endpoint {
	if v4 := senderIP.To4(); v4 != nil {
		return meshnet.NewV4(v4, dhtPort)
	}
	return meshnet.NewV6(senderIP, dhtPort)
}

// SendBroadcastV4 writes the beacon to the IPv4 limited-broadcast address
// on Port, via conn (which must have SO_BROADCAST set).
func SendBroadcastV4(conn net.PacketConn, dhtPort uint16) error {
	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: Port}
	_, err := conn.WriteTo(Encode(dhtPort), dst)
	if err != nil {
		logger.Debug("broadcast send failed", "err", err)
	}
	return err
}

// SendMulticastV6 writes the beacon to the site-local multicast group
// FF12::1 on Port, scoped to ifaceIndex, via conn.
func SendMulticastV6(conn net.PacketConn, ifaceIndex int, dhtPort uint16) error {
	dst := &net.UDPAddr{IP: IPv6Group, Port: Port, Zone: zoneForIndex(ifaceIndex)}
	_, err := conn.WriteTo(Encode(dhtPort), dst)
	if err != nil {
		logger.Debug("multicast send failed", "err", err)
	}
	return err
}

func zoneForIndex(ifaceIndex int) string {
	iface, err := net.InterfaceByIndex(ifaceIndex)
	if err != nil {
		return ""
	}
	return iface.Name
}
