// Package gateway assembles the HTTP surface of a node: REST routes
// and the websocket watch stream, registered onto the mux the unified
// server owns.
package gateway

import (
	"log/slog"
	"net/http"

	"offerdex/internal/catalog"
	"offerdex/internal/gateway/realtime"
	"offerdex/internal/gateway/rest"
	"offerdex/internal/ledger"
	"offerdex/internal/server"
	"offerdex/internal/server/ratelimit"
)

// Server is a route registrar for the API layer.
type Server struct {
	rest     *rest.Handler
	realtime *realtime.Server
}

// ServerOption configures optional gateway collaborators.
type ServerOption func(*serverConfig)

type serverConfig struct {
	ledger       ledger.Service
	tokens       *server.TokenService
	writeLimiter ratelimit.Limiter
	retryAfter   int
}

// WithLedger attaches the record feed to the REST handler.
func WithLedger(svc ledger.Service) ServerOption {
	return func(c *serverConfig) {
		c.ledger = svc
	}
}

// WithBearerAuth protects mutating routes with bearer tokens.
func WithBearerAuth(tokens *server.TokenService) ServerOption {
	return func(c *serverConfig) {
		c.tokens = tokens
	}
}

// WithWriteLimiter rate limits mutating routes per client IP.
func WithWriteLimiter(limiter ratelimit.Limiter, retryAfter int) ServerOption {
	return func(c *serverConfig) {
		c.writeLimiter = limiter
		c.retryAfter = retryAfter
	}
}

// NewServer creates the API route registrar. rt may be nil when the
// watch stream is disabled.
func NewServer(svc catalog.Service, rt *realtime.Server, logger *slog.Logger, opts ...ServerOption) *Server {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var restOpts []rest.HandlerOption
	if cfg.ledger != nil {
		restOpts = append(restOpts, rest.WithLedger(cfg.ledger))
	}
	if cfg.tokens != nil {
		restOpts = append(restOpts, rest.WithBearerAuth(cfg.tokens))
	}
	if cfg.writeLimiter != nil {
		restOpts = append(restOpts, rest.WithWriteLimiter(cfg.writeLimiter, cfg.retryAfter))
	}

	return &Server{
		rest:     rest.NewHandler(svc, logger, restOpts...),
		realtime: rt,
	}
}

// RegisterRoutes registers all API routes to the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.rest.RegisterRoutes(mux)

	if s.realtime != nil {
		mux.HandleFunc("GET /v1/watch", s.realtime.HandleWatch)
	}
}
