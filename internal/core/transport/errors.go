package transport

import "errors"

var (
	ErrNoProxyConfigured = errors.New("transport: socks5/http proxy required but not configured")
	ErrListenFailed      = errors.New("transport: listen failed")
	ErrDialFailed        = errors.New("transport: dial failed")
)
