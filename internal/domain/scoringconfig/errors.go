package scoringconfig

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidConfig = errors.New("invalid scoring config")
	ErrNoActiveRow   = errors.New("no active scoring config")
)

// ConfigLoadError reports that no usable configuration could be produced:
// the active row failed and the fallback default either failed too or was
// disabled.
type ConfigLoadError struct {
	ActiveErr   error
	FallbackErr error
}

func (e *ConfigLoadError) Error() string {
	switch {
	case e.FallbackErr != nil:
		return fmt.Sprintf("load scoring config: active: %v; default: %v", e.ActiveErr, e.FallbackErr)
	default:
		return fmt.Sprintf("load scoring config: active: %v; fallback disabled", e.ActiveErr)
	}
}

// Unwrap exposes ErrInvalidConfig and the underlying causes.
func (e *ConfigLoadError) Unwrap() []error {
	out := []error{ErrInvalidConfig}
	if e.ActiveErr != nil {
		out = append(out, e.ActiveErr)
	}
	if e.FallbackErr != nil {
		out = append(out, e.FallbackErr)
	}
	return out
}
