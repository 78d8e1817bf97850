package services

import (
	"context"
	"errors"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/auth"
	"github.com/McGuireTechnology/truledgr-auth/internal/config"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
)

// MFAStore is the persistence surface for TOTP enrollments, backup codes
// and pending login challenges.
type MFAStore interface {
	GetCredential(ctx context.Context, userID string) (*models.MFACredential, error)
	UpsertCredential(ctx context.Context, cred *models.MFACredential) error
	EnableCredential(ctx context.Context, userID string) error
	MarkStepUsed(ctx context.Context, userID string, step int64) (bool, error)
	DeleteCredential(ctx context.Context, userID string) error
	ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error)
	CountUnusedBackupCodes(ctx context.Context, userID string) (int, error)
	CreateChallenge(ctx context.Context, challenge *models.MFAChallenge) (*models.MFAChallenge, error)
	GetChallenge(ctx context.Context, id string) (*models.MFAChallenge, error)
	ConsumeChallenge(ctx context.Context, id string) (bool, error)
}

// MFASetup is what a user needs to finish enrolling an authenticator.
type MFASetup struct {
	Secret      string
	QRDataURL   string
	BackupCodes []string
}

// MFAService manages TOTP enrollment and verification. Enrollment is
// two-phase: Setup stores a disabled secret, Enable turns it on only after
// the user proves possession with a valid code.
type MFAService struct {
	store MFAStore
	totp  *auth.TOTPManager
	cfg   config.MFAConfig
}

func NewMFAService(store MFAStore, totp *auth.TOTPManager, cfg config.MFAConfig) *MFAService {
	return &MFAService{store: store, totp: totp, cfg: cfg}
}

// Enrolled reports whether the user has an enabled TOTP credential.
func (s *MFAService) Enrolled(ctx context.Context, userID string) (bool, error) {
	cred, err := s.store.GetCredential(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return cred.Enabled, nil
}

// Setup generates a fresh secret and backup codes for the user. The secret
// stays disabled until Enable confirms it; re-running Setup replaces any
// pending enrollment but refuses to clobber an enabled one.
func (s *MFAService) Setup(ctx context.Context, userID, accountName string) (*MFASetup, error) {
	existing, err := s.store.GetCredential(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Enabled {
		return nil, models.ErrConflict
	}

	enrollment, err := s.totp.GenerateEnrollment(accountName)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpsertCredential(ctx, &models.MFACredential{
		UserID:      userID,
		SecretEnc:   enrollment.SecretEnc,
		SecretNonce: enrollment.SecretNonce,
	}); err != nil {
		return nil, err
	}

	codes, err := auth.GenerateBackupCodes(s.cfg.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = auth.HashBackupCode(code)
	}
	if err := s.store.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}

	return &MFASetup{
		Secret:      enrollment.Secret,
		QRDataURL:   enrollment.QRDataURL,
		BackupCodes: codes,
	}, nil
}

// Enable activates a pending enrollment after the user presents a valid code
// from the new secret.
func (s *MFAService) Enable(ctx context.Context, userID, code string) error {
	cred, err := s.store.GetCredential(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrMfaNotEnrolled
		}
		return err
	}
	if cred.Enabled {
		return models.ErrConflict
	}

	ok, err := s.verifyTOTP(ctx, cred, code)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrMfaInvalid
	}

	return s.store.EnableCredential(ctx, userID)
}

// Disable removes the enrollment entirely. The caller must have already
// re-authenticated the user.
func (s *MFAService) Disable(ctx context.Context, userID string) error {
	return s.store.DeleteCredential(ctx, userID)
}

// VerifyCode checks a TOTP code for an enabled enrollment. The accepted time
// step is persisted before success is reported, so the same code cannot be
// used twice even by concurrent requests.
func (s *MFAService) VerifyCode(ctx context.Context, userID, code string) error {
	cred, err := s.store.GetCredential(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrMfaNotEnrolled
		}
		return err
	}
	if !cred.Enabled {
		return models.ErrMfaNotEnrolled
	}

	ok, err := s.verifyTOTP(ctx, cred, code)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrMfaInvalid
	}
	return nil
}

func (s *MFAService) verifyTOTP(ctx context.Context, cred *models.MFACredential, code string) (bool, error) {
	secret, err := s.totp.DecryptSecret(cred.SecretEnc, cred.SecretNonce)
	if err != nil {
		return false, err
	}

	valid, step, err := s.totp.Validate(secret, code, time.Now(), cred.LastUsedStep)
	if err != nil {
		return false, err
	}
	if !valid {
		return false, nil
	}

	// Persisting the step is the replay guard; losing the race means
	// another request already spent this code.
	return s.store.MarkStepUsed(ctx, cred.UserID, step)
}

// VerifyBackupCode consumes a single-use recovery code.
func (s *MFAService) VerifyBackupCode(ctx context.Context, userID, code string) error {
	ok, err := s.store.ConsumeBackupCode(ctx, userID, auth.HashBackupCode(code))
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrMfaInvalid
	}
	return nil
}

// BackupCodesRemaining reports how many recovery codes are still unused.
func (s *MFAService) BackupCodesRemaining(ctx context.Context, userID string) (int, error) {
	return s.store.CountUnusedBackupCodes(ctx, userID)
}

// IssueChallenge creates the pending-login handle returned when a password
// check succeeds but the account requires a second factor. accountKey is the
// identifier the first factor counted lockout failures under; the completion
// path charges and clears against that same key.
func (s *MFAService) IssueChallenge(ctx context.Context, userID, accountKey, ip, userAgent string) (*models.MFAChallenge, error) {
	return s.store.CreateChallenge(ctx, &models.MFAChallenge{
		UserID:     userID,
		AccountKey: accountKey,
		IPAddress:  ip,
		UserAgent:  userAgent,
		ExpiresAt:  time.Now().Add(s.cfg.ChallengeExpiry),
	})
}

// PendingChallenge returns a challenge by id without consuming it.
func (s *MFAService) PendingChallenge(ctx context.Context, challengeID string) (*models.MFAChallenge, error) {
	return s.store.GetChallenge(ctx, challengeID)
}

// CompleteChallenge verifies the second factor bound to a pending challenge
// and consumes it. The challenge burns only after the code verifies, so a
// mistyped code leaves the challenge usable.
func (s *MFAService) CompleteChallenge(ctx context.Context, challengeID, code string, backup bool) (*models.MFAChallenge, error) {
	challenge, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, err
	}
	if !challenge.Pending(time.Now()) {
		return nil, models.ErrUnauthorized
	}

	if backup {
		err = s.VerifyBackupCode(ctx, challenge.UserID, code)
	} else {
		err = s.VerifyCode(ctx, challenge.UserID, code)
	}
	if err != nil {
		return nil, err
	}

	consumed, err := s.store.ConsumeChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, models.ErrUnauthorized
	}

	return challenge, nil
}
