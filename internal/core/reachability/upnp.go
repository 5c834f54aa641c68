package reachability

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/huin/goupnp/dcps/internetgateway2"
	natpmp "github.com/jackpal/go-nat-pmp"
	"github.com/koron/go-ssdp"

	"github.com/meshnet-io/meshconn/internal/pkg/log"
)

var upnpLogger = log.Logger("core/reachability/upnp")

// igdClient is the subset of the generated goupnp WANIPConnection/
// WANPPPConnection clients this mapper needs, satisfied by both IGDv1
// and IGDv2 variants (grounded on the teacher's own igdv1Wrapper/
// igdv2Wrapper pattern).
type igdClient interface {
	GetExternalIPAddress() (string, error)
	AddPortMapping(newRemoteHost string, newExternalPort uint16, newProtocol string,
		newInternalPort uint16, newInternalClient string, newEnabled bool,
		newPortMappingDescription string, newLeaseDuration uint32) error
}

// upnpMapper discovers an IGD gateway and maps localPort via UPnP,
// falling back to NAT-PMP when no UPnP gateway answers (SPEC_FULL domain
// stack: huin/goupnp primary, jackpal/go-nat-pmp fallback).
type upnpMapper struct {
	client igdClient
}

// discoverIGD tries IGDv2 WANIPConnection, IGDv2 WANPPPConnection, IGDv1
// WANIPConnection, and IGDv1 WANPPPConnection, in that order — the same
// fallback chain the teacher's mapper uses. goupnp's own client
// constructors run their own internal SSDP search; when none of them turns
// up a gateway we run an explicit koron/go-ssdp search ourselves and feed
// every discovered Location into the same four client constructors,
// grounded on the teacher's tryCreateClientFromLocation/discoverGateway
// pattern (nat/upnp/mapper.go).
func discoverIGD(ctx context.Context) (*upnpMapper, error) {
	if clients, _, err := internetgateway2.NewWANIPConnection2ClientsCtx(ctx); err == nil && len(clients) > 0 {
		return &upnpMapper{client: clients[0]}, nil
	}
	if clients, _, err := internetgateway2.NewWANPPPConnection1ClientsCtx(ctx); err == nil && len(clients) > 0 {
		return &upnpMapper{client: clients[0]}, nil
	}
	if clients, _, err := internetgateway1.NewWANIPConnection1ClientsCtx(ctx); err == nil && len(clients) > 0 {
		return &upnpMapper{client: clients[0]}, nil
	}
	if clients, _, err := internetgateway1.NewWANPPPConnection1ClientsCtx(ctx); err == nil && len(clients) > 0 {
		return &upnpMapper{client: clients[0]}, nil
	}

	services, err := ssdp.Search(ssdp.All, 2, "")
	if err != nil || len(services) == 0 {
		upnpLogger.Debug("ssdp search found no services", "err", err)
		return nil, ErrNoGateway
	}

	for _, svc := range services {
		loc, err := url.Parse(svc.Location)
		if err != nil {
			continue
		}
		if mapper := mapperFromLocation(ctx, loc); mapper != nil {
			upnpLogger.Debug("ssdp search located a usable gateway", "location", svc.Location)
			return mapper, nil
		}
	}

	return nil, ErrNoGateway
}

// mapperFromLocation tries to build an igdClient from a device description
// URL discovered via SSDP, trying the same four service types as
// discoverIGD's default path.
func mapperFromLocation(ctx context.Context, loc *url.URL) *upnpMapper {
	if clients, err := internetgateway2.NewWANIPConnection2ClientsByURLCtx(ctx, loc); err == nil && len(clients) > 0 {
		return &upnpMapper{client: clients[0]}
	}
	if clients, err := internetgateway2.NewWANPPPConnection1ClientsByURLCtx(ctx, loc); err == nil && len(clients) > 0 {
		return &upnpMapper{client: clients[0]}
	}
	if clients, err := internetgateway1.NewWANIPConnection1ClientsByURLCtx(ctx, loc); err == nil && len(clients) > 0 {
		return &upnpMapper{client: clients[0]}
	}
	if clients, err := internetgateway1.NewWANPPPConnection1ClientsByURLCtx(ctx, loc); err == nil && len(clients) > 0 {
		return &upnpMapper{client: clients[0]}
	}
	return nil
}

func (m *upnpMapper) externalIP() (net.IP, error) {
	s, err := m.client.GetExternalIPAddress()
	if err != nil {
		return nil, err
	}
	return net.ParseIP(s), nil
}

func (m *upnpMapper) mapPort(localIP net.IP, port uint16) error {
	return m.client.AddPortMapping("", port, "TCP", port, localIP.String(), true, "meshconn", 0)
}

// natPMPExternalIP asks the gateway's NAT-PMP responder for the external
// IP, used when no UPnP IGD answered.
func natPMPExternalIP(gateway net.IP, timeout time.Duration) (net.IP, error) {
	client := natpmp.NewClientWithTimeout(gateway, timeout)
	resp, err := client.GetExternalAddress()
	if err != nil {
		return nil, err
	}
	ip := net.IPv4(resp.ExternalIPAddress[0], resp.ExternalIPAddress[1], resp.ExternalIPAddress[2], resp.ExternalIPAddress[3])
	return ip, nil
}

// natPMPMapPort requests a NAT-PMP mapping as the UPnP fallback path.
func natPMPMapPort(gateway net.IP, port uint16, timeout time.Duration) error {
	client := natpmp.NewClientWithTimeout(gateway, timeout)
	_, err := client.AddPortMapping("tcp", int(port), int(port), 3600)
	return err
}
