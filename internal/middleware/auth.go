package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tapshop/backend/internal/models"
)

type contextKey string

const adminContextKey contextKey = "admin"

// TokenValidator resolves a bearer token to the admin it was issued to
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.AdminIdentity, error)
}

// AdminAuth rejects requests without a valid, non-revoked admin token
func AdminAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			admin, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("[AUTH] Rejected admin token")
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context(), *admin)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func WithAdmin(ctx context.Context, admin models.AdminIdentity) context.Context {
	return context.WithValue(ctx, adminContextKey, admin)
}

// AdminFromContext returns the authenticated admin, if any
func AdminFromContext(ctx context.Context) (models.AdminIdentity, bool) {
	admin, ok := ctx.Value(adminContextKey).(models.AdminIdentity)
	return admin, ok
}
