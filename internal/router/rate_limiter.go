package router

import (
	"sync"
	"time"
)

// DefaultRateLimit is the number of chat and typing events a user may send per window.
const DefaultRateLimit = 100

// RateLimiter implements per-user rate limiting over a fixed one minute window
// ARCHITECTURAL DISCOVERY: Per-user state tracking with periodic Cleanup prevents memory leaks
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	clients map[string]*clientLimit
}

type clientLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing limit events per minute per key.
// A non-positive limit falls back to DefaultRateLimit.
func NewRateLimiter(limit int) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	return &RateLimiter{
		limit:   limit,
		window:  time.Minute,
		now:     time.Now,
		clients: make(map[string]*clientLimit),
	}
}

// Allow records one event for key and reports whether it is within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	state, exists := rl.clients[key]
	if !exists || now.Sub(state.windowStart) >= rl.window {
		rl.clients[key] = &clientLimit{count: 1, windowStart: now}
		return true
	}

	if state.count >= rl.limit {
		return false
	}

	state.count++
	return true
}

// Cleanup drops keys idle for five windows. The hub calls it once a minute.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, state := range rl.clients {
		if now.Sub(state.windowStart) > 5*rl.window {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// Tracked returns the number of keys currently holding limiter state.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
