package handshake

import "go.uber.org/fx"

// Module provides nothing beyond what this package's exported functions
// already expose — Initiate/Accept are called directly by C1's accept
// loop and by the outbound connect path, not constructed as a service.
// The var exists so the node's top-level fx graph can still depend on
// "core_handshake" being wired, matching the teacher's one-fx.Module-
// per-package convention even for stateless packages.
var Module = fx.Module("core_handshake")
