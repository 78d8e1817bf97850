package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/auth"
	"github.com/McGuireTechnology/truledgr-auth/internal/metrics"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	pkgauth "github.com/McGuireTechnology/truledgr-auth/pkg/auth"
)

// AuthUserStore is the slice of user persistence the orchestrator needs.
type AuthUserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// LoginResult is the outcome of a successful first authentication factor.
// Either Tokens is set, or MFARequired is true and ChallengeID carries the
// handle for the second step.
type LoginResult struct {
	Tokens      *models.TokenPair
	MFARequired bool
	ChallengeID string
}

// dummyHash is compared against when the account does not exist or has no
// password, so both paths cost a full argon2 verification.
const dummyHash = "$argon2id$v=19$m=65536,t=2,p=1$AAAAAAAAAAAAAAAAAAAAAA$ActuW9EkUk4XFDP7lDiTHmdYrq3oGm5tNAPcRAQMTQo"

// AuthService orchestrates the credential login pipeline: lockout gate,
// password verification, optional second factor, session issuance, failure
// accounting and audit. Per-request state stays on the stack; the service is
// safe for concurrent use.
type AuthService struct {
	users    AuthUserStore
	sessions *SessionService
	lockouts *LockoutService
	mfa      *MFAService
	security *SecurityService
	timing   *auth.TimingEqualizer
	logger   *slog.Logger
}

func NewAuthService(
	users AuthUserStore,
	sessions *SessionService,
	lockouts *LockoutService,
	mfa *MFAService,
	security *SecurityService,
	timing *auth.TimingEqualizer,
	log *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		lockouts: lockouts,
		mfa:      mfa,
		security: security,
		timing:   timing,
		logger:   log,
	}
}

// Register provisions a credential account.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: &hash,
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Login runs the first authentication factor. The timing equalizer pads
// every exit so not-found, wrong-password and locked responses are
// indistinguishable by latency.
func (s *AuthService) Login(ctx context.Context, identifier, password, ip, userAgent string) (*LoginResult, error) {
	start := time.Now()
	defer s.timing.Equalize(start)

	accountKey := strings.ToLower(strings.TrimSpace(identifier))

	if err := s.lockouts.Check(ctx, accountKey); err != nil {
		if errors.Is(err, models.ErrAccountLocked) {
			metrics.RecordLogin(metrics.OutcomeLocked)
			s.recordLoginFailure(ctx, nil, accountKey, ip, userAgent, "account_locked")
		}
		return nil, err
	}

	user, err := s.users.GetByIdentifier(ctx, accountKey)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Burn a hash comparison and count the failure against the
			// key even though no account exists.
			_ = pkgauth.ComparePassword(dummyHash, password)
			s.failAttempt(ctx, nil, accountKey, ip, userAgent, "unknown_account")
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.Authenticatable() {
		s.recordLoginFailure(ctx, &user.ID, accountKey, ip, userAgent, "account_disabled")
		return nil, models.ErrAccountDisabled
	}

	if !user.HasPassword() {
		_ = pkgauth.ComparePassword(dummyHash, password)
		s.failAttempt(ctx, &user.ID, accountKey, ip, userAgent, "no_password")
		return nil, models.ErrInvalidCredentials
	}

	if err := pkgauth.ComparePassword(*user.PasswordHash, password); err != nil {
		s.failAttempt(ctx, &user.ID, accountKey, ip, userAgent, "wrong_password")
		return nil, models.ErrInvalidCredentials
	}

	enrolled, err := s.mfa.Enrolled(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		// The failure counter stays until the second factor completes.
		challenge, err := s.mfa.IssueChallenge(ctx, user.ID, accountKey, ip, userAgent)
		if err != nil {
			return nil, err
		}
		metrics.RecordLogin(metrics.OutcomeMFAPending)
		return &LoginResult{MFARequired: true, ChallengeID: challenge.ID}, nil
	}

	pair, err := s.finishLogin(ctx, user, accountKey, ip, userAgent)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Tokens: pair}, nil
}

// CompleteMFALogin runs the second factor against a pending challenge and
// finishes the login it belongs to.
func (s *AuthService) CompleteMFALogin(ctx context.Context, challengeID, code string, backup bool, ip, userAgent string) (*models.TokenPair, error) {
	start := time.Now()
	defer s.timing.Equalize(start)

	challenge, err := s.mfa.CompleteChallenge(ctx, challengeID, code, backup)
	if err != nil {
		if errors.Is(err, models.ErrMfaInvalid) {
			// A wrong second-factor code is a failed attempt against the
			// same account key the first factor counted under.
			metrics.RecordLogin(metrics.OutcomeMFAFailure)
			if pending, perr := s.mfa.PendingChallenge(ctx, challengeID); perr == nil {
				s.failAttempt(ctx, &pending.UserID, pending.AccountKey, ip, userAgent, "invalid_mfa_code")
			}
		}
		return nil, err
	}

	user, err := s.users.GetByID(ctx, challenge.UserID)
	if err != nil {
		return nil, err
	}
	if !user.Authenticatable() {
		return nil, models.ErrAccountDisabled
	}

	return s.finishLogin(ctx, user, challenge.AccountKey, ip, userAgent)
}

// finishLogin is the common tail of a fully verified authentication: clear
// the failure counter, issue the session, record success.
func (s *AuthService) finishLogin(ctx context.Context, user *models.User, accountKey, ip, userAgent string) (*models.TokenPair, error) {
	s.lockouts.ClearOnSuccess(ctx, accountKey, user.ID)

	pair, err := s.sessions.Issue(ctx, user.ID, ip, userAgent)
	if err != nil {
		return nil, err
	}

	metrics.RecordLogin(metrics.OutcomeSuccess)
	s.security.Record(ctx, &models.SecurityEvent{
		EventType: models.EventLoginSuccess,
		Severity:  models.SeverityLow,
		ActorID:   &user.ID,
		IPAddress: ip,
		UserAgent: userAgent,
		Details:   models.EventDetails{"session_id": pair.SessionID},
	})

	return pair, nil
}

// failAttempt counts a failed attempt and records the audit event.
func (s *AuthService) failAttempt(ctx context.Context, userID *string, accountKey, ip, userAgent, reason string) {
	metrics.RecordLogin(metrics.OutcomeFailure)
	if err := s.lockouts.RecordFailure(ctx, accountKey, ip, userID); err != nil {
		s.logger.Error("failed to record login failure",
			slog.String("account_key", accountKey),
			slog.String("error", err.Error()),
		)
	}
	s.recordLoginFailure(ctx, userID, accountKey, ip, userAgent, reason)
}

func (s *AuthService) recordLoginFailure(ctx context.Context, userID *string, accountKey, ip, userAgent, reason string) {
	s.security.Record(ctx, &models.SecurityEvent{
		EventType: models.EventLoginFailure,
		Severity:  models.SeverityMedium,
		ActorID:   userID,
		IPAddress: ip,
		UserAgent: userAgent,
		Details: models.EventDetails{
			"account_key": accountKey,
			"reason":      reason,
		},
	})
}

// Refresh delegates to the session service.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*models.TokenPair, error) {
	return s.sessions.Refresh(ctx, refreshToken, ip, userAgent)
}

// Logout revokes the caller's current session. Revocation is idempotent.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string) error {
	return s.sessions.Revoke(ctx, userID, sessionID, models.RevokeReasonLogout)
}

// LogoutAll revokes every active session for the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	return s.sessions.RevokeAll(ctx, userID, models.RevokeReasonLogoutAll)
}

// ChangePassword verifies the current password, stores the new hash and
// revokes every session so stolen refresh tokens die with the old password.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ip string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		return models.ErrInvalidCredentials
	}
	if err := pkgauth.ComparePassword(*user.PasswordHash, currentPassword); err != nil {
		return models.ErrInvalidCredentials
	}
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	if _, err := s.sessions.RevokeAll(ctx, userID, models.RevokeReasonPasswordChange); err != nil {
		s.logger.Error("failed to revoke sessions after password change",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.security.Record(ctx, &models.SecurityEvent{
		EventType: models.EventPasswordChange,
		Severity:  models.SeverityMedium,
		ActorID:   &userID,
		IPAddress: ip,
		Details:   models.EventDetails{"method": "authenticated_change"},
	})

	return nil
}
