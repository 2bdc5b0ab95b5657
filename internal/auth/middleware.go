package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const ownerKey contextKey = "owner_id"

// OwnerIDFromContext returns the authenticated owner id, or empty.
func OwnerIDFromContext(ctx context.Context) string {
	if value, ok := ctx.Value(ownerKey).(string); ok {
		return value
	}
	return ""
}

// WithOwnerID returns a context carrying the owner id. Exposed for tests.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey, ownerID)
}

// Middleware rejects requests without a valid bearer token and stores the
// owner id on the request context.
type Middleware struct {
	secret []byte
}

// NewMiddleware constructs a middleware.
func NewMiddleware(secret []byte) *Middleware {
	return &Middleware{secret: secret}
}

// Wrap enforces authentication on next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := ParseJWT(strings.TrimPrefix(header, "Bearer "), m.secret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), claims.OwnerID)))
	})
}
