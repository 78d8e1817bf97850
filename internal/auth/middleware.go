package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	pkghttp "github.com/McGuireTechnology/truledgr-auth/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const claimsContextKey contextKey = "claims"

// SessionChecker reports whether the session behind a token is still live.
// A structurally valid token whose session has been revoked must be
// rejected; this check is the authoritative override.
type SessionChecker interface {
	IsActive(ctx context.Context, sessionID string) (bool, error)
}

// Authorizer evaluates a permission check for a principal.
type Authorizer interface {
	Authorize(ctx context.Context, userID, resource, action string) (bool, error)
}

// ClaimsFromContext returns the access claims injected by Middleware.
func ClaimsFromContext(ctx context.Context) (*models.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*models.AccessClaims)
	return claims, ok
}

// ContextWithClaims injects access claims into a context.
func ContextWithClaims(ctx context.Context, claims *models.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// Middleware validates bearer access tokens, confirms the referenced
// session is still active, and injects the claims into the request context.
func Middleware(tm *TokenManager, sessions SessionChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tm.ValidateAccessToken(parts[1])
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			active, err := sessions.IsActive(r.Context(), claims.SessionID)
			if err != nil {
				// Fail closed: without a revocation answer the token is unusable
				pkghttp.WriteServiceUnavailable(w, "service unavailable")
				return
			}
			if !active {
				pkghttp.WriteUnauthorized(w, "session revoked or expired")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// RequirePermission gates a route on an exact resource/action grant.
func RequirePermission(authorizer Authorizer, resource, action string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}

			allowed, err := authorizer.Authorize(r.Context(), claims.UserID, resource, action)
			if err != nil {
				pkghttp.WriteServiceUnavailable(w, "service unavailable")
				return
			}
			if !allowed {
				pkghttp.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
