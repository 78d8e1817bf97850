package services

import (
	"context"
	"testing"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/auth"
	"github.com/McGuireTechnology/truledgr-auth/internal/config"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resetFixture struct {
	tokens   *MockPasswordResetStore
	users    *MockUserStore
	sessions *MockSessionStore
	email    *MockEmailService
	events   *MockSecurityEventStore
	svc      *PasswordResetService
}

func newResetFixture() *resetFixture {
	f := &resetFixture{
		tokens:   &MockPasswordResetStore{},
		users:    &MockUserStore{},
		sessions: &MockSessionStore{},
		email:    &MockEmailService{},
		events:   &MockSecurityEventStore{},
	}

	log := testLogger()
	security := NewSecurityService(f.events, nil, log)
	sessions := NewSessionService(f.sessions, auth.NewTokenManager("test-secret-0123456789abcdef", 15*time.Minute), security, config.AuthConfig{
		RefreshTokenExpiry: 7 * 24 * time.Hour,
	}, log)

	f.svc = NewPasswordResetService(f.tokens, f.users, sessions, f.email, security, config.EmailConfig{
		ResetTokenExpiry: time.Hour,
	}, log)
	return f
}

func TestRequestUnknownEmailIsSilent(t *testing.T) {
	f := newResetFixture()

	err := f.svc.Request(context.Background(), "nobody@example.com", "10.0.0.1")
	require.NoError(t, err)
	assert.Empty(t, f.email.SentTo)
}

func TestRequestStoresHashAndSendsToken(t *testing.T) {
	f := newResetFixture()

	var stored *models.PasswordResetToken
	var sentToken string

	f.users.GetByEmailFunc = func(ctx context.Context, email string) (*models.User, error) {
		return &models.User{ID: "user_123", Email: email, IsActive: true}, nil
	}
	f.tokens.CreateFunc = func(ctx context.Context, token *models.PasswordResetToken) error {
		stored = token
		return nil
	}
	f.email.SendPasswordResetEmailFunc = func(ctx context.Context, email, token string, expiresAt time.Time) error {
		sentToken = token
		return nil
	}

	err := f.svc.Request(context.Background(), "alice@example.com", "10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotEmpty(t, sentToken)

	// The plaintext token goes only into the email.
	assert.NotEqual(t, sentToken, stored.TokenHash)
	assert.Equal(t, hashResetToken(sentToken), stored.TokenHash)
	assert.WithinDuration(t, time.Now().Add(time.Hour), stored.ExpiresAt, 2*time.Second)
}

func TestConfirmResetsPasswordAndRevokesSessions(t *testing.T) {
	f := newResetFixture()

	var newHash, revokedReason string
	f.tokens.RedeemFunc = func(ctx context.Context, tokenHash string) (string, error) {
		return "user_123", nil
	}
	f.users.UpdatePasswordFunc = func(ctx context.Context, id, passwordHash string) error {
		newHash = passwordHash
		return nil
	}
	f.sessions.RevokeAllForUserFunc = func(ctx context.Context, userID, reason string) (int64, error) {
		revokedReason = reason
		return 3, nil
	}

	err := f.svc.Confirm(context.Background(), "reset-token", "N3w!SecretPass", "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, newHash)
	assert.Equal(t, models.RevokeReasonPasswordChange, revokedReason)

	require.Len(t, f.events.Events, 1)
	assert.Equal(t, models.EventPasswordChange, f.events.Events[0].EventType)
}

func TestConfirmInvalidToken(t *testing.T) {
	f := newResetFixture()

	err := f.svc.Confirm(context.Background(), "bogus", "N3w!SecretPass", "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestConfirmRejectsWeakPassword(t *testing.T) {
	f := newResetFixture()

	f.tokens.RedeemFunc = func(ctx context.Context, tokenHash string) (string, error) {
		t.Fatal("weak password must be rejected before the token is spent")
		return "", nil
	}

	err := f.svc.Confirm(context.Background(), "reset-token", "weak", "10.0.0.1")
	assert.Error(t, err)
}
