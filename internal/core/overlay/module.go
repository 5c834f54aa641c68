package overlay

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the overlay adapter to the node's fx graph. Starting
// it (conditional on overlay being enabled at all) and wiring its onion
// endpoint into the DHT manager's overlay node happens in the top-level
// node composition, since that ordering spans multiple components.
var Module = fx.Module("core_overlay",
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(a *Adapter, lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return a.Stop()
		},
	})
}
