// Package ratelimit provides rate limiting functionality for API endpoints.
package ratelimit

import (
	"time"
)

// Limiter defines the interface for rate limiting implementations.
type Limiter interface {
	// Allow checks if a request from the given key should be allowed.
	// Returns true if the request is allowed, false if it should be rate limited.
	Allow(key string) bool

	// Reset clears the rate limit counter for the given key.
	Reset(key string)
}

// Stoppable extends Limiter with a Stop method for cleanup.
type Stoppable interface {
	Limiter
	Stop()
}

// Config holds the runtime configuration for a limiter.
type Config struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool

	// Requests is the maximum number of requests allowed per window.
	Requests int

	// Window is the duration of the rate limiting window.
	Window time.Duration
}

// DefaultConfig returns the default rate limiting configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Requests: 100,
		Window:   time.Minute,
	}
}
