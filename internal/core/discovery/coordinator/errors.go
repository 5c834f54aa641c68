package coordinator

import "errors"

var (
	ErrBootstrapBlobTooShort = errors.New("coordinator: bootstrap blob truncated")
	ErrOverlayDisabled       = errors.New("coordinator: anonymity overlay is not enabled")
)
