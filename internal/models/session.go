package models

import "time"

// Session represents one authenticated device/browser instance. The refresh
// token bound to it is stored only as a hash; PreviousTokenHash keeps the
// rotated-out hash so reuse of a stale token can be detected.
type Session struct {
	ID                string
	UserID            string
	RefreshTokenHash  string
	PreviousTokenHash *string
	IPAddress         string
	UserAgent         string
	IsActive          bool
	ExpiresAt         time.Time
	LastActivityAt    time.Time
	RevokedAt         *time.Time
	RevokedReason     *string
	CreatedAt         time.Time
}

// Revocation reasons recorded on sessions.
const (
	RevokeReasonLogout         = "logout"
	RevokeReasonLogoutAll      = "logout_all"
	RevokeReasonAdmin          = "admin_revoked"
	RevokeReasonPasswordChange = "password_change"
	RevokeReasonTokenReuse     = "refresh_token_reuse"
	RevokeReasonExpired        = "expired"
)

// Live reports whether the session is usable at the given instant.
// Expired sessions are treated as inactive without waiting for the sweeper.
func (s *Session) Live(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}
