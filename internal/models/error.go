package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// Authentication failure kinds. Handlers map each to a distinct response
// code; internal storage failures are never surfaced as their own kind.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrMfaInvalid         = errors.New("invalid multi-factor code")
	ErrMfaNotEnrolled     = errors.New("multi-factor authentication not enrolled")
)

// Token failure kinds
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenReused signals presentation of a rotated-out refresh token.
	// Callers must revoke the owning session when they see it.
	ErrTokenReused = errors.New("token reuse detected")
)

// OAuth federation failure kinds
var (
	ErrOAuthStateInvalid        = errors.New("oauth state invalid or already consumed")
	ErrOAuthProviderUnavailable = errors.New("oauth provider unavailable") // retryable
	ErrOAuthProviderUnknown     = errors.New("unknown oauth provider")
)

// Authorization failure kinds
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrRoleNotFound     = errors.New("role not found")
)
