package server

import (
	"context"
	"net/http"

	"offerdex/internal/server/ratelimit"
)

// Service is the interface for the HTTP network layer.
type Service interface {
	// Start initializes and starts the HTTP listener.
	// It blocks until a fatal error occurs or the context is canceled.
	Start(ctx context.Context) error

	// Stop initiates a graceful shutdown.
	// It waits for active connections to drain or for the context to expire.
	Stop(ctx context.Context) error

	// RegisterHTTPHandler registers a handler for a specific pattern.
	// This must be called BEFORE Start().
	RegisterHTTPHandler(pattern string, handler http.Handler)

	// HTTPMux returns the underlying HTTP ServeMux for direct route registration.
	// This must be called BEFORE Start().
	HTTPMux() *http.ServeMux

	// WriteLimiter returns the stricter limiter for mutating endpoints,
	// or nil when rate limiting is disabled.
	WriteLimiter() ratelimit.Limiter
}
