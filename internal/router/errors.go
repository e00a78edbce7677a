package router

import "errors"

// Router-specific errors
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidRoom       = errors.New("room name cannot be empty")
	ErrUnknownSession    = errors.New("session not attached to router")
)
