package samplebus

import "errors"

// Sentinel errors returned by the bus.
var (
	ErrStreamBusy    = errors.New("stream already has a subscriber")
	ErrClosed        = errors.New("sample bus closed")
	ErrUnknownStream = errors.New("unknown stream")
)
