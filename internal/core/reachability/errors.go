package reachability

import "errors"

var (
	ErrNoGateway              = errors.New("reachability: no UPnP gateway found")
	ErrMappingFailed          = errors.New("reachability: UPnP port mapping failed")
	ErrNoDefaultInterface     = errors.New("reachability: no default interface for this family")
	ErrUnsupportedDomainProbe = errors.New("reachability: incoming-check endpoint cannot be a domain endpoint")
)
