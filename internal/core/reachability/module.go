package reachability

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
)

// Machines bundles the two per-family state machines the rest of the
// node depends on.
type Machines struct {
	IPv4 *Machine
	IPv6 *Machine
}

// NewMachines builds both family machines from one shared config, then
// launches their timer loops.
func NewMachines(cfg Config, clk clock.Clock, lc fx.Lifecycle) *Machines {
	m := &Machines{
		IPv4: NewIPv4Machine(cfg, clk),
		IPv6: NewIPv6Machine(cfg, clk),
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go m.IPv4.Run()
			go m.IPv6.Run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			m.IPv4.Close()
			m.IPv6.Close()
			return nil
		},
	})
	return m
}

// Module provides the reachability machines to the node's fx graph. It
// does not provide clock.Clock itself — that comes from whichever module
// is wired first (discovery_localdht in the default graph) so every
// component shares one (possibly mocked) time source.
var Module = fx.Module("core_reachability",
	fx.Provide(NewMachines),
)
