package model

import "errors"

// Sentinel error kinds shared by the pipeline stages.
var (
	// ErrBadConfigValue marks a configuration value that would silently corrupt
	// every score (non-positive soft-clip scale, guardrails outside (0,1)).
	ErrBadConfigValue = errors.New("bad config value")
	// ErrInvalidSnapshot marks a distribution snapshot that cannot be built
	// from the supplied mapping.
	ErrInvalidSnapshot = errors.New("invalid distribution snapshot")
)
