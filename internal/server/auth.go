package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the bearer token claims for operator authentication.
type Claims struct {
	Operator string `json:"op,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HMAC-signed bearer tokens. The
// secret is shared between the server and the operator tooling.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenService creates a token service from the auth configuration.
func NewTokenService(cfg AuthConfig) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth secret is empty")
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "offerdex"
	}
	ttl := cfg.TokenTTL.Std()
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{
		secret: []byte(cfg.Secret),
		issuer: issuer,
		ttl:    ttl,
	}, nil
}

// GenerateToken issues a token for the named operator.
func (s *TokenService) GenerateToken(operator string) (string, error) {
	now := time.Now()
	claims := Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and verifies a token string.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// BearerAuth returns middleware that rejects requests lacking a valid
// bearer token. A nil token service lets every request through, which
// is how disabled auth is wired.
func BearerAuth(tokens *TokenService) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="offerdex"`)
				WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
				return
			}

			claims, err := tokens.ValidateToken(strings.TrimPrefix(auth, prefix))
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid bearer token")
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyOperator, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOperator retrieves the authenticated operator from the context,
// or "" when the request was not authenticated.
func GetOperator(ctx context.Context) string {
	if op, ok := ctx.Value(contextKeyOperator).(string); ok {
		return op
	}
	return ""
}
