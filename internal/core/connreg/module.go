package connreg

import "go.uber.org/fx"

// Module provides the connection registry and its in-flight coalescing
// sets to the node's fx graph. Real and virtual (tunneled) connections
// coalesce through separate sets (spec §4.6).
var Module = fx.Module("core_connreg",
	fx.Provide(
		New,
		fx.Annotate(NewInFlightSet, fx.ResultTags(`name:"real"`)),
		fx.Annotate(NewInFlightSet, fx.ResultTags(`name:"virtual"`)),
	),
)
