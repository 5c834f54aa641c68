package overlay

import "errors"

var (
	ErrControllerNotConfigured = errors.New("overlay: no controller command configured")
	ErrControllerStartTimeout  = errors.New("overlay: controller did not report readiness in time")
	ErrControllerExited        = errors.New("overlay: controller process exited before reporting readiness")
	ErrMalformedReadyLine      = errors.New("overlay: controller readiness line was not 'onion-address socks5-port'")
)
