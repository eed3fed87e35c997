package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"offerdex/internal/server/ratelimit"
)

type serverImpl struct {
	cfg    Config
	logger *slog.Logger

	// HTTP State
	httpMux    *http.ServeMux
	httpServer *http.Server

	// Rate Limiting
	rateLimiter  ratelimit.Limiter // general limiter, applied to every request
	writeLimiter ratelimit.Limiter // stricter limiter for mutating endpoints

	// Lifecycle State
	mu      sync.Mutex
	started bool
}

// New creates a new Service instance.
func New(cfg Config, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	s := &serverImpl{
		cfg:     cfg,
		logger:  logger,
		httpMux: http.NewServeMux(),
	}

	if cfg.RateLimit.Enabled {
		s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.Config{
			Enabled:  true,
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window.Std(),
		})

		writeWindow := cfg.RateLimit.WriteWindow
		if writeWindow == 0 {
			writeWindow = cfg.RateLimit.Window
		}
		s.writeLimiter = ratelimit.NewMemoryLimiter(ratelimit.Config{
			Enabled:  true,
			Requests: cfg.RateLimit.WriteRequests,
			Window:   writeWindow.Std(),
		})
	}

	return s
}

func (s *serverImpl) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true

	// Initialize the HTTP server while holding the lock
	s.initHTTPServer()
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go s.runHTTPServer(errChan)

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return nil // Normal shutdown signal
	}
}

func (s *serverImpl) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.httpServer != nil {
		s.logger.Info("Stopping HTTP server")
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("http shutdown error: %w", shutdownErr)
		}
	}

	// Stop rate limiter cleanup goroutines
	if stoppable, ok := s.rateLimiter.(ratelimit.Stoppable); ok {
		stoppable.Stop()
	}
	if stoppable, ok := s.writeLimiter.(ratelimit.Stoppable); ok {
		stoppable.Stop()
	}

	return err
}

func (s *serverImpl) RegisterHTTPHandler(pattern string, handler http.Handler) {
	s.httpMux.Handle(pattern, handler)
}

func (s *serverImpl) HTTPMux() *http.ServeMux {
	return s.httpMux
}

func (s *serverImpl) WriteLimiter() ratelimit.Limiter {
	return s.writeLimiter
}
