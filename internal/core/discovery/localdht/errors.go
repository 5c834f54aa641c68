package localdht

import "errors"

var (
	ErrNoAddress = errors.New("localdht: interface has no usable address")
	ErrClosed    = errors.New("localdht: manager closed")
)
