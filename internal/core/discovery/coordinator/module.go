package coordinator

import "go.uber.org/fx"

// Module provides the DHT manager (C4) to the node's fx graph.
var Module = fx.Module("discovery_coordinator",
	fx.Provide(New),
)
