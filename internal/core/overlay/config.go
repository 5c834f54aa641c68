package overlay

import "time"

// Config bundles the overlay adapter's startup parameters (spec §4.9).
type Config struct {
	// LocalPort is the port a hidden service is mapped to.
	LocalPort uint16

	// ControllerCommand launches the external overlay-controller process.
	// Empty disables the overlay entirely (OverlayEnabled=false upstream).
	ControllerCommand []string

	// StartTimeout bounds how long Start waits for the controller's
	// readiness line.
	StartTimeout time.Duration
}

func (c Config) startTimeout() time.Duration {
	if c.StartTimeout > 0 {
		return c.StartTimeout
	}
	return 60 * time.Second
}
