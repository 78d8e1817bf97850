package handlers

import (
	"errors"
	"net/http"

	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	pkghttp "github.com/McGuireTechnology/truledgr-auth/pkg/http"
)

// writeServiceError maps sentinel errors to their HTTP responses. Anything
// unrecognized is an internal or upstream failure and collapses to 503 with
// no detail, so storage and provider outages are indistinguishable.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrUnauthorized),
		errors.Is(err, models.ErrTokenExpired),
		errors.Is(err, models.ErrTokenRevoked),
		errors.Is(err, models.ErrTokenReused):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrAccountDisabled):
		// Indistinguishable from bad credentials to prevent enumeration.
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteLocked(w, "Account is temporarily locked. Please try again later.")
	case errors.Is(err, models.ErrMfaInvalid):
		pkghttp.WriteUnauthorized(w, "Invalid verification code")
	case errors.Is(err, models.ErrMfaNotEnrolled):
		pkghttp.WriteBadRequest(w, "Multi-factor authentication is not set up")
	case errors.Is(err, models.ErrPermissionDenied),
		errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Permission denied")
	case errors.Is(err, models.ErrRoleNotFound):
		pkghttp.WriteNotFound(w, "Role not found")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Resource already exists")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrOAuthStateInvalid),
		errors.Is(err, models.ErrOAuthProviderUnknown):
		pkghttp.WriteBadRequest(w, "Invalid authorization request")
	case errors.Is(err, models.ErrOAuthProviderUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	}
}
