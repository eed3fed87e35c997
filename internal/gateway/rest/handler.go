// Package rest exposes the catalog over HTTP. It translates URL and
// query parameters into catalog calls and maps service errors onto
// HTTP statuses. Authentication and rate limiting wrap the mutating
// routes only; reads are always open.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/schema"

	"offerdex/internal/catalog"
	"offerdex/internal/ledger"
	"offerdex/internal/server"
	"offerdex/internal/server/ratelimit"
	"offerdex/pkg/model"
)

type Handler struct {
	catalog catalog.Service
	ledger  ledger.Service
	tokens  *server.TokenService
	limiter ratelimit.Limiter
	// retryAfter is the Retry-After header value in seconds sent on
	// rate limited responses.
	retryAfter int
	decoder    *schema.Decoder
	logger     *slog.Logger
}

// HandlerOption configures optional handler collaborators.
type HandlerOption func(*Handler)

// WithLedger attaches the record feed. Signed publishes are appended to
// it after they apply locally, and /v1/stats includes its counters.
func WithLedger(svc ledger.Service) HandlerOption {
	return func(h *Handler) {
		h.ledger = svc
	}
}

// WithBearerAuth requires a valid bearer token on mutating routes. A
// nil token service leaves them open.
func WithBearerAuth(tokens *server.TokenService) HandlerOption {
	return func(h *Handler) {
		h.tokens = tokens
	}
}

// WithWriteLimiter rate limits mutating routes per client IP.
func WithWriteLimiter(limiter ratelimit.Limiter, retryAfter int) HandlerOption {
	return func(h *Handler) {
		h.limiter = limiter
		h.retryAfter = retryAfter
	}
}

func NewHandler(svc catalog.Service, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if svc == nil {
		panic("catalog service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	h := &Handler{
		catalog: svc,
		decoder: decoder,
		logger:  logger.With("component", "rest"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Default body size limits
const (
	DefaultMaxBodySize = 1 << 20  // 1MB for signed records
	ImportMaxBodySize  = 10 << 20 // 10MB for raw CSV imports
)

// Default request timeout
const (
	DefaultRequestTimeout = 30 * time.Second
	ImportRequestTimeout  = 60 * time.Second // CSV import and export move more data
)

// APIError represents a structured error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// writeError writes a structured JSON error response
func writeError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIError{Code: code, Message: message}); err != nil {
		slog.Warn("Failed to encode error response", "error", err)
	}
}

// writeInternalError writes an internal error response, but first checks
// whether the error is due to client cancellation (499 instead of 500).
func writeInternalError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, context.Canceled) {
		w.WriteHeader(499) // Client Closed Request
		return
	}
	slog.Error(message, "error", err)
	writeError(w, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// writeServiceError maps catalog errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case model.IsNotFound(err):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidQuery),
		errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrInvalidIdentity):
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, model.ErrSignature):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.As(err, &maxBytes):
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, "Request body too large")
	default:
		writeInternalError(w, err, "Internal catalog error")
	}
}

// writeJSON writes a JSON response with proper error handling
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}

// maxBodySize wraps a handler with request body size limiting
func maxBodySize(next http.HandlerFunc, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next(w, r)
	}
}

// withTimeout wraps a handler with a context timeout
func withTimeout(next http.HandlerFunc, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

// protected wraps a mutating handler with the write rate limit and
// bearer auth. The limiter runs first so unauthenticated floods are
// cut off before token validation.
func (h *Handler) protected(next http.HandlerFunc) http.HandlerFunc {
	wrapped := http.Handler(next)
	wrapped = server.BearerAuth(h.tokens)(wrapped)
	if h.limiter != nil {
		wrapped = ratelimit.Middleware(h.limiter, h.retryAfter)(wrapped)
	}
	return wrapped.ServeHTTP
}

// providerFromPath parses the {pubkey} path segment.
func providerFromPath(r *http.Request) (model.ProviderPubkey, error) {
	return model.PubkeyFromHex(r.PathValue("pubkey"))
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Read side. Request ID, panic recovery, CORS and the global rate
	// limit are handled by the unified server middleware.
	mux.HandleFunc("GET /v1/search", withTimeout(h.handleSearch, DefaultRequestTimeout))
	mux.HandleFunc("GET /v1/offerings/{pubkey}/{key}", withTimeout(h.handleGetOffering, DefaultRequestTimeout))
	mux.HandleFunc("GET /v1/providers/{pubkey}/offerings", withTimeout(h.handleListProviderOfferings, DefaultRequestTimeout))
	mux.HandleFunc("GET /v1/export", withTimeout(h.handleExport, ImportRequestTimeout))
	mux.HandleFunc("GET /v1/stats", withTimeout(h.handleStats, DefaultRequestTimeout))
	mux.HandleFunc("GET /healthz", h.handleHealth)

	// Write side. Signed catalog publishes verify the record signature
	// even when bearer auth is disabled; import and the withdrawals
	// trust the token alone.
	mux.HandleFunc("PUT /v1/providers/{pubkey}/catalog", withTimeout(maxBodySize(h.protected(h.handlePublishCatalog), DefaultMaxBodySize), DefaultRequestTimeout))
	mux.HandleFunc("DELETE /v1/providers/{pubkey}/catalog", withTimeout(h.protected(h.handleWithdrawProvider), DefaultRequestTimeout))
	mux.HandleFunc("DELETE /v1/providers/{pubkey}/offerings/{key}", withTimeout(h.protected(h.handleWithdrawOffering), DefaultRequestTimeout))
	mux.HandleFunc("POST /v1/import", withTimeout(maxBodySize(h.protected(h.handleImport), ImportMaxBodySize), ImportRequestTimeout))
}
