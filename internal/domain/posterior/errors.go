package posterior

import "errors"

// ErrInvalidBlendWeights is returned when blend weights are negative or all zero.
var ErrInvalidBlendWeights = errors.New("invalid season blend weights")
