package localdht

import (
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/benbjohnson/clock"
	"golang.org/x/net/ipv6"

	"github.com/meshnet-io/meshconn/internal/core/discovery/beacon"
	"github.com/meshnet-io/meshconn/internal/core/discovery/dht"
	"github.com/meshnet-io/meshconn/internal/pkg/log"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

var logger = log.Logger("discovery/localdht")

// Manager owns one interface's beacon socket, TCP DHT listener, and
// DhtNodeHandle (spec §4.3, component C3). One Manager runs per live,
// non-loopback network interface.
type Manager struct {
	iface meshnet.NetworkInterfaceRecord
	clock clock.Clock

	udpConn  net.PacketConn
	tcpLn    net.Listener
	node     *dht.Node
	bindAddr meshnet.Endpoint

	discovered chan meshnet.Endpoint
	accepted   chan net.Conn
	closeCh    chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// New starts the beacon socket and DHT TCP listener for iface and returns
// the running Manager. Callers own the returned Manager's lifetime and
// must Close it when the interface disappears (spec §4.4's network
// watcher diffs interfaces every 15s and tears managers down on removal).
func New(iface meshnet.NetworkInterfaceRecord, clk clock.Clock) (*Manager, error) {
	udpConn, err := listenBeaconSocket(iface)
	if err != nil {
		return nil, err
	}

	if iface.Family == meshnet.AddrV6 && iface.MulticastCapable {
		if err := joinIPv6Group(udpConn, iface.InterfaceIndex); err != nil {
			logger.Debug("ipv6 multicast join failed", "iface", iface.Name, "err", err)
		}
	}

	tcpLn, err := net.Listen("tcp", net.JoinHostPort(iface.LocalIP, "0"))
	if err != nil {
		udpConn.Close()
		return nil, err
	}

	bindAddr := endpointFromTCPAddr(tcpLn.Addr())
	node, err := dht.NewNode(bindAddr, meshnet.LocalNetwork)
	if err != nil {
		udpConn.Close()
		tcpLn.Close()
		return nil, err
	}

	m := &Manager{
		iface:      iface,
		clock:      clk,
		udpConn:    udpConn,
		tcpLn:      tcpLn,
		node:       node,
		bindAddr:   bindAddr,
		discovered: make(chan meshnet.Endpoint, 32),
		accepted:   make(chan net.Conn, 8),
		closeCh:    make(chan struct{}),
	}

	m.wg.Add(3)
	go m.udpReceiveLoop()
	go m.tcpAcceptLoop()
	go m.announceLoop()

	return m, nil
}

// Node returns the interface's DhtNodeHandle.
func (m *Manager) Node() *dht.Node { return m.node }

// BindEndpoint returns the TCP listener's local endpoint — the address
// advertised in beacons sent from this interface.
func (m *Manager) BindEndpoint() meshnet.Endpoint { return m.bindAddr }

// Interface returns the NetworkInterfaceRecord this Manager was started
// for.
func (m *Manager) Interface() meshnet.NetworkInterfaceRecord { return m.iface }

// DiscoveredEndpoints yields candidate peer endpoints observed via
// incoming beacons. A beacon alone carries no PeerId (spec §6), so
// discovery only produces a dial candidate; identity is established by
// the connection-initiate handshake (C6), which should call
// NotifyPeerIdentified on success to populate the routing table.
func (m *Manager) DiscoveredEndpoints() <-chan meshnet.Endpoint { return m.discovered }

// AcceptedConns yields raw TCP sockets accepted on the DHT listener,
// handed off directly to the connection-initiate protocol (no HTTP decoy
// on the local network, spec §4.3).
func (m *Manager) AcceptedConns() <-chan net.Conn { return m.accepted }

// NotifyPeerIdentified records peer's endpoint in the local routing table
// once the handshake protocol (C6) has established its identity.
func (m *Manager) NotifyPeerIdentified(peer meshnet.PeerId, ep meshnet.Endpoint) {
	m.node.Insert(peer, ep)
}

// Close shuts down the beacon socket, TCP listener, and all background
// loops. Safe to call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.closeCh)
		m.udpConn.Close()
		m.tcpLn.Close()
		m.node.Close()
	})
	m.wg.Wait()
	return nil
}

func (m *Manager) udpReceiveLoop() {
	defer m.wg.Done()
	buf := make([]byte, udpReadBufferSize)
	for {
		n, addr, err := m.udpConn.ReadFrom(buf)
		if err != nil {
			select {
			case <-m.closeCh:
				return
			default:
				logger.Debug("beacon read failed", "iface", m.iface.Name, "err", err)
				return
			}
		}

		port, err := beacon.Decode(buf[:n])
		if err != nil {
			logger.Debug("malformed beacon", "iface", m.iface.Name, "err", err)
			continue
		}

		senderIP := ipFromNetAddr(addr)
		if senderIP == nil {
			continue
		}
		ep := beacon.EndpointFromDatagram(senderIP, port)
		if ep.Equal(m.bindAddr) {
			continue // our own beacon, looped back by the broadcast/multicast fabric
		}

		select {
		case m.discovered <- ep:
		default:
			logger.Debug("discovery channel full, dropping candidate", "iface", m.iface.Name)
		}
	}
}

func (m *Manager) tcpAcceptLoop() {
	defer m.wg.Done()
	for {
		conn, err := m.tcpLn.Accept()
		if err != nil {
			select {
			case <-m.closeCh:
				return
			default:
				logger.Debug("dht listener accept failed", "iface", m.iface.Name, "err", err)
				return
			}
		}
		select {
		case m.accepted <- conn:
		case <-m.closeCh:
			conn.Close()
			return
		}
	}
}

// announceLoop sends a burst of beaconBurstCount beacons spaced
// beaconBurstInterval apart, then re-arms every beaconReannounceInterval
// for another burst as long as the local routing table still knows fewer
// than beaconReannounceMinPeers peers (spec §4.3).
func (m *Manager) announceLoop() {
	defer m.wg.Done()

	burst := func() {
		for i := 0; i < beaconBurstCount; i++ {
			m.sendBeacon()
			if i < beaconBurstCount-1 {
				t := m.clock.Timer(beaconBurstInterval)
				select {
				case <-t.C:
				case <-m.closeCh:
					t.Stop()
					return
				}
			}
		}
	}

	burst()

	ticker := m.clock.Ticker(beaconReannounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if m.node.Count() < beaconReannounceMinPeers {
				burst()
			}
		case <-m.closeCh:
			return
		}
	}
}

func (m *Manager) sendBeacon() {
	port := m.bindAddr.Port()
	switch m.iface.Family {
	case meshnet.AddrV6:
		if err := beacon.SendMulticastV6(m.udpConn, m.iface.InterfaceIndex, port); err != nil {
			logger.Debug("ipv6 beacon send failed", "iface", m.iface.Name, "err", err)
		}
	default:
		if err := beacon.SendBroadcastV4(m.udpConn, port); err != nil {
			logger.Debug("ipv4 beacon send failed", "iface", m.iface.Name, "err", err)
		}
	}
}

func listenBeaconSocket(iface meshnet.NetworkInterfaceRecord) (net.PacketConn, error) {
	if iface.LocalIP == "" {
		return nil, ErrNoAddress
	}
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			if err := controlBroadcastReuse(network, address, c); err != nil {
				return err
			}
			return ignoreICMPUnreachable(c)
		},
	}
	network := "udp4"
	if iface.Family == meshnet.AddrV6 {
		network = "udp6"
	}
	addr := net.JoinHostPort(iface.LocalIP, strconv.Itoa(beacon.Port))
	pc, err := lc.ListenPacket(nil, network, addr)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func joinIPv6Group(pc net.PacketConn, ifaceIndex int) error {
	iface, err := net.InterfaceByIndex(ifaceIndex)
	if err != nil {
		return err
	}
	p := ipv6.NewPacketConn(pc)
	return p.JoinGroup(iface, &net.UDPAddr{IP: beacon.IPv6Group})
}

func endpointFromTCPAddr(addr net.Addr) meshnet.Endpoint {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return meshnet.Endpoint{}
	}
	if v4 := tcpAddr.IP.To4(); v4 != nil {
		return meshnet.NewV4(v4, uint16(tcpAddr.Port))
	}
	return meshnet.NewV6(tcpAddr.IP, uint16(tcpAddr.Port))
}

func ipFromNetAddr(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.UDPAddr:
		return v.IP
	default:
		return nil
	}
}
