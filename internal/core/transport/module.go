package transport

import "go.uber.org/fx"

// Module provides the transport primitives to the node's fx graph.
var Module = fx.Module("core_transport",
	fx.Provide(New),
)
