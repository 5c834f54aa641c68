package localdht

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

// Factory starts a Manager for one live interface. The DHT manager (C4)
// holds one Manager per interface and creates/tears them down as
// netscan.Diff reports interfaces appearing/disappearing.
type Factory func(iface meshnet.NetworkInterfaceRecord) (*Manager, error)

// NewFactory closes over the process clock so every Manager started from
// it shares the same (possibly mocked) time source.
func NewFactory(clk clock.Clock) Factory {
	return func(iface meshnet.NetworkInterfaceRecord) (*Manager, error) {
		return New(iface, clk)
	}
}

// Module provides the local-network DHT manager factory to the node's fx
// graph. The real-time clock is provided here so tests can override it
// with clock.NewMock via fx.Replace.
var Module = fx.Module("discovery_localdht",
	fx.Provide(
		func() clock.Clock { return clock.New() },
		NewFactory,
	),
)
