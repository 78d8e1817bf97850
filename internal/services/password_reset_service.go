package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/config"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	pkgauth "github.com/McGuireTechnology/truledgr-auth/pkg/auth"
	"github.com/McGuireTechnology/truledgr-auth/pkg/logger"
)

// PasswordResetStore is the persistence surface for reset tokens.
type PasswordResetStore interface {
	Create(ctx context.Context, token *models.PasswordResetToken) error
	Redeem(ctx context.Context, tokenHash string) (string, error)
}

// PasswordResetUserStore is the slice of user persistence the flow needs.
type PasswordResetUserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// PasswordResetService implements the email reset flow. Requesting a reset
// is deliberately outcome-blind: the endpoint responds identically whether
// or not the address has an account.
type PasswordResetService struct {
	tokens   PasswordResetStore
	users    PasswordResetUserStore
	sessions *SessionService
	email    EmailService
	security *SecurityService
	cfg      config.EmailConfig
	logger   *slog.Logger
}

func NewPasswordResetService(
	tokens PasswordResetStore,
	users PasswordResetUserStore,
	sessions *SessionService,
	email EmailService,
	security *SecurityService,
	cfg config.EmailConfig,
	log *slog.Logger,
) *PasswordResetService {
	return &PasswordResetService{
		tokens:   tokens,
		users:    users,
		sessions: sessions,
		email:    email,
		security: security,
		cfg:      cfg,
		logger:   log,
	}
}

// Request issues a reset token and emails it. Unknown addresses return nil
// without sending anything.
func (s *PasswordResetService) Request(ctx context.Context, email, ip string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email",
				slog.String("email", logger.SanitizedEmail(email)),
			)
			return nil
		}
		return err
	}

	token, hash, err := generateResetToken()
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(s.cfg.ResetTokenExpiry)
	if err := s.tokens.Create(ctx, &models.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: expiresAt,
	}); err != nil {
		return err
	}

	if err := s.email.SendPasswordResetEmail(ctx, user.Email, token, expiresAt); err != nil {
		return fmt.Errorf("failed to deliver reset email: %w", err)
	}

	return nil
}

// Confirm redeems a reset token, replaces the password and revokes every
// active session for the account.
func (s *PasswordResetService) Confirm(ctx context.Context, token, newPassword, ip string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	userID, err := s.tokens.Redeem(ctx, hashResetToken(token))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
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
		s.logger.Error("failed to revoke sessions after password reset",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.security.Record(ctx, &models.SecurityEvent{
		EventType: models.EventPasswordChange,
		Severity:  models.SeverityMedium,
		ActorID:   &userID,
		IPAddress: ip,
		Details:   models.EventDetails{"method": "reset_token"},
	})

	return nil
}

func generateResetToken() (token string, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, hashResetToken(token), nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
