package models

import (
	"time"
)

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash *string // NULL for OAuth-only accounts
	IsActive     bool
	IsVerified   bool
	IsLocked     bool       // mirror of the active lockout state, maintained by the lockout guard
	DeletedAt    *time.Time // soft delete marker
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the account can authenticate with credentials.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Authenticatable reports whether the account may log in at all.
func (u *User) Authenticatable() bool {
	return u.IsActive && u.DeletedAt == nil
}
