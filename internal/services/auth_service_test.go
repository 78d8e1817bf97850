package services

import (
	"context"
	"testing"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/auth"
	"github.com/McGuireTechnology/truledgr-auth/internal/config"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	pkgauth "github.com/McGuireTechnology/truledgr-auth/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authFixture struct {
	users    *MockUserStore
	sessions *MockSessionStore
	lockouts *MockLockoutStore
	mfaStore *MockMFAStore
	events   *MockSecurityEventStore
	svc      *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	f := &authFixture{
		users:    &MockUserStore{},
		sessions: &MockSessionStore{},
		lockouts: &MockLockoutStore{},
		mfaStore: &MockMFAStore{},
		events:   &MockSecurityEventStore{},
	}

	log := testLogger()
	security := NewSecurityService(f.events, nil, log)
	lockouts := NewLockoutService(f.lockouts, f.users, security, config.LockoutConfig{
		Threshold:      3,
		BaseLockPeriod: 15 * time.Minute,
		MaxLockPeriod:  time.Hour,
		CounterWindow:  time.Hour,
	}, log)
	sessions := NewSessionService(f.sessions, auth.NewTokenManager("test-secret-0123456789abcdef", 15*time.Minute), security, config.AuthConfig{
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		RefreshRotation:    true,
	}, log)

	box, err := auth.NewSecretBox(make([]byte, 32))
	require.NoError(t, err)
	mfa := NewMFAService(f.mfaStore, auth.NewTOTPManager(box, "TestIssuer"), config.MFAConfig{
		ChallengeExpiry: 5 * time.Minute,
		BackupCodeCount: 4,
	})

	f.svc = NewAuthService(f.users, sessions, lockouts, mfa, security,
		auth.NewTimingEqualizer(auth.TimingConfig{}), log)
	return f
}

func testUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := pkgauth.HashPassword(password)
	require.NoError(t, err)
	return &models.User{
		ID:           "user_123",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: &hash,
		IsActive:     true,
	}
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, "Sup3rSecret!pass")

	cleared := false
	f.users.GetByIdentifierFunc = func(ctx context.Context, identifier string) (*models.User, error) {
		assert.Equal(t, "alice@example.com", identifier)
		return user, nil
	}
	f.lockouts.ClearFunc = func(ctx context.Context, accountKey string) error {
		cleared = true
		return nil
	}

	result, err := f.svc.Login(context.Background(), "Alice@Example.com", "Sup3rSecret!pass", "10.0.0.1", "test-agent")
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)
	assert.False(t, result.MFARequired)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.True(t, cleared)

	require.Len(t, f.events.Events, 1)
	assert.Equal(t, models.EventLoginSuccess, f.events.Events[0].EventType)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, "Sup3rSecret!pass")

	failures := 0
	f.users.GetByIdentifierFunc = func(ctx context.Context, identifier string) (*models.User, error) {
		return user, nil
	}
	f.lockouts.RecordFailureFunc = func(ctx context.Context, accountKey string, ip *string, window time.Duration) (*models.AccountLockout, error) {
		failures++
		return &models.AccountLockout{ID: "l1", AccountKey: accountKey, FailedAttempts: failures}, nil
	}

	_, err := f.svc.Login(context.Background(), "alice", "wrong-Passw0rd", "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Equal(t, 1, failures)

	require.Len(t, f.events.Events, 1)
	assert.Equal(t, models.EventLoginFailure, f.events.Events[0].EventType)
	assert.Equal(t, "wrong_password", f.events.Events[0].Details["reason"])
}

func TestLoginUnknownAccountCountsFailure(t *testing.T) {
	f := newAuthFixture(t)

	failures := 0
	f.lockouts.RecordFailureFunc = func(ctx context.Context, accountKey string, ip *string, window time.Duration) (*models.AccountLockout, error) {
		failures++
		assert.Equal(t, "ghost@example.com", accountKey)
		return &models.AccountLockout{ID: "l1", AccountKey: accountKey, FailedAttempts: failures}, nil
	}

	_, err := f.svc.Login(context.Background(), "ghost@example.com", "anything-At-all1", "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Equal(t, 1, failures)
}

func TestLoginLockedAccount(t *testing.T) {
	f := newAuthFixture(t)
	unlockAt := time.Now().Add(10 * time.Minute)
	lockedAt := time.Now().Add(-5 * time.Minute)

	f.lockouts.GetByKeyFunc = func(ctx context.Context, accountKey string) (*models.AccountLockout, error) {
		return &models.AccountLockout{
			ID: "l1", AccountKey: accountKey, IsActive: true,
			LockedAt: &lockedAt, UnlockAt: &unlockAt, FailedAttempts: 5,
		}, nil
	}
	f.users.GetByIdentifierFunc = func(ctx context.Context, identifier string) (*models.User, error) {
		t.Fatal("locked account must not reach credential verification")
		return nil, nil
	}

	_, err := f.svc.Login(context.Background(), "alice", "Sup3rSecret!pass", "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrAccountLocked)
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, "Sup3rSecret!pass")
	user.IsActive = false

	f.users.GetByIdentifierFunc = func(ctx context.Context, identifier string) (*models.User, error) {
		return user, nil
	}

	_, err := f.svc.Login(context.Background(), "alice", "Sup3rSecret!pass", "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrAccountDisabled)
}

func TestLoginMfaEnrolledIssuesChallenge(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, "Sup3rSecret!pass")

	f.users.GetByIdentifierFunc = func(ctx context.Context, identifier string) (*models.User, error) {
		return user, nil
	}
	f.mfaStore.GetCredentialFunc = func(ctx context.Context, userID string) (*models.MFACredential, error) {
		return &models.MFACredential{UserID: userID, Enabled: true}, nil
	}
	f.lockouts.ClearFunc = func(ctx context.Context, accountKey string) error {
		t.Fatal("failure counter must not clear before the second factor completes")
		return nil
	}

	result, err := f.svc.Login(context.Background(), "alice", "Sup3rSecret!pass", "10.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.True(t, result.MFARequired)
	assert.NotEmpty(t, result.ChallengeID)
	assert.Nil(t, result.Tokens)
}

func TestCompleteMFALoginWrongCodeCountsAgainstLoginKey(t *testing.T) {
	f := newAuthFixture(t)

	// Login happened under the username, not the email. The second factor
	// must charge the same key.
	f.mfaStore.GetChallengeFunc = func(ctx context.Context, id string) (*models.MFAChallenge, error) {
		return &models.MFAChallenge{
			ID: id, UserID: "user_123", AccountKey: "alice",
			ExpiresAt: time.Now().Add(5 * time.Minute),
		}, nil
	}

	failures := 0
	f.lockouts.RecordFailureFunc = func(ctx context.Context, accountKey string, ip *string, window time.Duration) (*models.AccountLockout, error) {
		failures++
		assert.Equal(t, "alice", accountKey)
		return &models.AccountLockout{ID: "l1", AccountKey: accountKey, FailedAttempts: failures}, nil
	}
	f.lockouts.ClearFunc = func(ctx context.Context, accountKey string) error {
		t.Fatal("a failed second factor must not clear the failure counter")
		return nil
	}

	_, err := f.svc.CompleteMFALogin(context.Background(), "challenge_1", "not-a-backup-code", true, "10.0.0.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrMfaInvalid)
	assert.Equal(t, 1, failures)
}

func TestCompleteMFALoginClearsLoginKey(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, "Sup3rSecret!pass")

	f.mfaStore.GetChallengeFunc = func(ctx context.Context, id string) (*models.MFAChallenge, error) {
		return &models.MFAChallenge{
			ID: id, UserID: user.ID, AccountKey: "alice",
			ExpiresAt: time.Now().Add(5 * time.Minute),
		}, nil
	}
	f.mfaStore.ConsumeBackupCodeFunc = func(ctx context.Context, userID, codeHash string) (bool, error) {
		return true, nil
	}
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}

	var clearedKey string
	f.lockouts.ClearFunc = func(ctx context.Context, accountKey string) error {
		clearedKey = accountKey
		return nil
	}

	pair, err := f.svc.CompleteMFALogin(context.Background(), "challenge_1", "recovery-code", true, "10.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, "alice", clearedKey)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, "Sup3rSecret!pass")

	var revokedReason string
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}
	f.sessions.RevokeAllForUserFunc = func(ctx context.Context, userID, reason string) (int64, error) {
		revokedReason = reason
		return 2, nil
	}

	err := f.svc.ChangePassword(context.Background(), user.ID, "Sup3rSecret!pass", "N3w!SecretPass", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.RevokeReasonPasswordChange, revokedReason)

	require.Len(t, f.events.Events, 1)
	assert.Equal(t, models.EventPasswordChange, f.events.Events[0].EventType)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newAuthFixture(t)
	user := testUser(t, "Sup3rSecret!pass")

	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}

	err := f.svc.ChangePassword(context.Background(), user.ID, "not-the-Passw0rd", "N3w!SecretPass", "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)

	f.sessions.GetByIDFunc = func(ctx context.Context, id string) (*models.Session, error) {
		return &models.Session{ID: id, UserID: "user_123", IsActive: false}, nil
	}

	err := f.svc.Logout(context.Background(), "user_123", "session_123")
	assert.NoError(t, err)
	err = f.svc.Logout(context.Background(), "user_123", "session_123")
	assert.NoError(t, err)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Register(context.Background(), "bob", "bob@example.com", "short")
	require.Error(t, err)

	var verr *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &verr)
}
