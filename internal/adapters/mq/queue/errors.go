package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrClosed = errors.New("retro queue closed")
	ErrFull   = errors.New("retro queue full")
)
