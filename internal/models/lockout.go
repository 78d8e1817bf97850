package models

import "time"

// AccountLockout tracks consecutive authentication failures for one account
// key (lowercased username or email), optionally scoped to a source IP.
// The account is locked iff IsActive and the current time is before UnlockAt.
type AccountLockout struct {
	ID             string
	AccountKey     string
	IPAddress      *string
	FailedAttempts int
	// LockoutCycles counts how many times this key has crossed the
	// threshold; it drives the escalating backoff.
	LockoutCycles int
	LockedAt      *time.Time
	UnlockAt      *time.Time
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Locked reports whether the lockout denies authentication at the given
// instant. An active record with an elapsed UnlockAt no longer locks.
func (l *AccountLockout) Locked(now time.Time) bool {
	if !l.IsActive || l.UnlockAt == nil {
		return false
	}
	return now.Before(*l.UnlockAt)
}
