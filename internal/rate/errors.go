package rate

import "errors"

var (
	// ErrUnknownClass is returned for a class with no configured policy.
	ErrUnknownClass = errors.New("unknown rate limit class")
	// ErrRedisUnavailable wraps Redis failures. Callers must fail closed.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
