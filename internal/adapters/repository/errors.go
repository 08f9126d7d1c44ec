package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for store errors.
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrLockNotHeld      = errors.New("pipeline lock not held")
)

// Unavailable wraps err as a store failure of op.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
