package relay

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the relay coordinator to the node's fx graph and starts
// its relay-client fill loop for the fx app's lifetime.
var Module = fx.Module("core_relay",
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(c *Coordinator, lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go c.Run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			c.Close()
			return nil
		},
	})
}
