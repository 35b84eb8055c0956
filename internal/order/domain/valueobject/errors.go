package valueobject

import "errors"

// ErrValidation marks malformed command input. Callers reject the request
// before any write; it is never retried.
var ErrValidation = errors.New("validation error")
