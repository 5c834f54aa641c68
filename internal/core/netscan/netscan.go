// Package netscan enumerates live local network interfaces into
// meshnet.NetworkInterfaceRecord snapshots, shared by the local-network
// DHT manager (C3), which owns one manager per interface, and the DHT
// manager's network watcher (C4), which diffs snapshots every 15s (spec
// §4.3, §4.4).
package netscan

import (
	"net"

	"github.com/meshnet-io/meshconn/internal/pkg/log"
	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

var logger = log.Logger("core/netscan")

// Scan returns one NetworkInterfaceRecord per address on every live,
// non-loopback interface.
func Scan() []meshnet.NetworkInterfaceRecord {
	var out []meshnet.NetworkInterfaceRecord

	ifaces, err := net.Interfaces()
	if err != nil {
		logger.Debug("interface enumeration failed", "err", err)
		return out
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			logger.Debug("interface address lookup failed", "iface", iface.Name, "err", err)
			continue
		}

		multicastCapable := iface.Flags&net.FlagMulticast != 0

		for _, a := range addrs {
			ip := ipFromAddr(a)
			if ip == nil || ip.IsLoopback() {
				continue
			}

			family := meshnet.AddrV4
			if ip.To4() == nil {
				family = meshnet.AddrV6
			}

			out = append(out, meshnet.NetworkInterfaceRecord{
				Name:             iface.Name,
				LocalIP:          ip.String(),
				BroadcastIP:      broadcastFor(a),
				InterfaceIndex:   iface.Index,
				Family:           family,
				MulticastCapable: multicastCapable,
			})
		}
	}

	return out
}

// Diff reports interfaces present in curr but not prev (added) and
// interfaces present in prev but not curr (removed), per the data
// model's equality rule (local IP equality only, spec §3).
func Diff(prev, curr []meshnet.NetworkInterfaceRecord) (added, removed []meshnet.NetworkInterfaceRecord) {
	prevSet := make(map[string]meshnet.NetworkInterfaceRecord, len(prev))
	for _, r := range prev {
		prevSet[r.LocalIP] = r
	}
	currSet := make(map[string]meshnet.NetworkInterfaceRecord, len(curr))
	for _, r := range curr {
		currSet[r.LocalIP] = r
	}

	for ip, r := range currSet {
		if _, ok := prevSet[ip]; !ok {
			added = append(added, r)
		}
	}
	for ip, r := range prevSet {
		if _, ok := currSet[ip]; !ok {
			removed = append(removed, r)
		}
	}
	return added, removed
}

func ipFromAddr(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}

func broadcastFor(a net.Addr) string {
	ipNet, ok := a.(*net.IPNet)
	if !ok || ipNet.IP.To4() == nil {
		return ""
	}
	ip4 := ipNet.IP.To4()
	mask := ipNet.Mask
	bcast := make(net.IP, len(ip4))
	for i := range ip4 {
		bcast[i] = ip4[i] | ^mask[i]
	}
	return bcast.String()
}
