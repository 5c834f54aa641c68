package connreg

import "errors"

// ErrNotFound is returned by lookups; it has no counterpart in the
// shared meshnet error-kind list because it never crosses the handshake
// boundary as a distinct outcome (spec §7).
var ErrNotFound = errors.New("connreg: no record for that key")
