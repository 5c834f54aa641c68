package meshnet

import "errors"

// Error kinds shared across the connectivity core (spec §7).
var (
	ErrUnreachable               = errors.New("meshnet: unreachable")
	ErrTimeout                   = errors.New("meshnet: timeout")
	ErrDecoyAborted              = errors.New("meshnet: http decoy aborted")
	ErrBadHandshake              = errors.New("meshnet: bad handshake")
	ErrUnsupportedProtoVersion   = errors.New("meshnet: unsupported protocol version")
	ErrUnsupportedBeaconVersion  = errors.New("meshnet: unsupported beacon version")
	ErrUnsupportedFamily         = errors.New("meshnet: unsupported address family")
	ErrSelfConnection            = errors.New("meshnet: self connection")
	ErrDuplicateVirtual          = errors.New("meshnet: duplicate virtual connection")
	ErrDuplicateReal             = errors.New("meshnet: duplicate real connection")
	ErrDuplicateNotReconciled    = errors.New("meshnet: duplicate not reconciled")
	ErrDuplicateRejected         = errors.New("meshnet: duplicate rejected")
	ErrConnectInProgress         = errors.New("meshnet: connect already in progress")
	ErrDisposed                  = errors.New("meshnet: disposed")
)
