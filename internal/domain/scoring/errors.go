package scoring

import "errors"

// ErrComponents is returned when the diagnostic payload cannot be encoded.
var ErrComponents = errors.New("encode score components")
