package models

import "time"

// MFACredential holds a user's TOTP enrollment. The shared secret is stored
// AES-GCM encrypted. LastUsedStep records the most recent accepted time
// step so a code cannot be replayed within its validity window.
type MFACredential struct {
	UserID       string
	SecretEnc    []byte
	SecretNonce  []byte
	Enabled      bool
	LastUsedStep int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MFABackupCode is a single-use recovery code, hashed at rest.
type MFABackupCode struct {
	ID       string
	UserID   string
	CodeHash string
	UsedAt   *time.Time
}

// MFAChallenge is the pending-login handle issued when a password check
// succeeds but the account requires a second factor. The lockout failure
// counter is not cleared until the challenge is completed.
type MFAChallenge struct {
	ID string
	// AccountKey is the identifier the first factor counted failures
	// under. Second-factor outcomes must hit the same key.
	AccountKey string
	UserID     string
	IPAddress  string
	UserAgent  string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Pending reports whether the challenge can still be completed.
func (c *MFAChallenge) Pending(now time.Time) bool {
	return c.ConsumedAt == nil && now.Before(c.ExpiresAt)
}
