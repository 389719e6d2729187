package rate

import "errors"

var (
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures. Callers usually fail open.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
