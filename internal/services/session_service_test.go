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

func newSessionFixture(rotation bool) (*SessionService, *MockSessionStore, *MockSecurityEventStore) {
	store := &MockSessionStore{}
	events := &MockSecurityEventStore{}
	log := testLogger()
	security := NewSecurityService(events, nil, log)

	svc := NewSessionService(store, auth.NewTokenManager("test-secret-0123456789abcdef", 15*time.Minute), security, config.AuthConfig{
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		RefreshRotation:    rotation,
	}, log)
	return svc, store, events
}

func TestIssueReturnsBoundTokens(t *testing.T) {
	svc, store, _ := newSessionFixture(true)

	var storedHash string
	store.CreateFunc = func(ctx context.Context, session *models.Session) (*models.Session, error) {
		session.ID = "session_abc"
		storedHash = session.RefreshTokenHash
		return session, nil
	}

	pair, err := svc.Issue(context.Background(), "user_123", "10.0.0.1", "agent")
	require.NoError(t, err)
	assert.Equal(t, "session_abc", pair.SessionID)
	assert.NotEmpty(t, pair.AccessToken)

	// Only the hash of the refresh token is ever stored.
	assert.NotEqual(t, pair.RefreshToken, storedHash)
	assert.Equal(t, auth.HashRefreshToken(pair.RefreshToken), storedHash)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, store, _ := newSessionFixture(true)

	current := "old-refresh-token"
	currentHash := auth.HashRefreshToken(current)
	session := &models.Session{
		ID:               "session_abc",
		UserID:           "user_123",
		RefreshTokenHash: currentHash,
		IsActive:         true,
		ExpiresAt:        time.Now().Add(time.Hour),
	}

	store.GetByRefreshTokenHashFunc = func(ctx context.Context, hash string) (*models.Session, error) {
		if hash == currentHash {
			return session, nil
		}
		return nil, models.ErrNotFound
	}
	store.RotateFunc = func(ctx context.Context, sessionID, oldHash, newHash string) (*models.Session, error) {
		require.Equal(t, session.ID, sessionID)
		require.Equal(t, currentHash, oldHash)
		rotated := *session
		rotated.RefreshTokenHash = newHash
		rotated.PreviousTokenHash = &currentHash
		return &rotated, nil
	}

	pair, err := svc.Refresh(context.Background(), current, "10.0.0.1", "agent")
	require.NoError(t, err)
	assert.NotEqual(t, current, pair.RefreshToken)
	assert.Equal(t, "session_abc", pair.SessionID)
}

func TestRefreshReuseRevokesSession(t *testing.T) {
	svc, store, events := newSessionFixture(true)

	stale := "already-rotated-token"
	staleHash := auth.HashRefreshToken(stale)
	session := &models.Session{
		ID:                "session_abc",
		UserID:            "user_123",
		RefreshTokenHash:  "some-newer-hash",
		PreviousTokenHash: &staleHash,
		IsActive:          true,
		ExpiresAt:         time.Now().Add(time.Hour),
	}

	var revokedID, revokedReason string
	store.GetByPreviousTokenHashFunc = func(ctx context.Context, hash string) (*models.Session, error) {
		if hash == staleHash {
			return session, nil
		}
		return nil, models.ErrNotFound
	}
	store.RevokeFunc = func(ctx context.Context, id, reason string) error {
		revokedID = id
		revokedReason = reason
		return nil
	}

	_, err := svc.Refresh(context.Background(), stale, "10.0.0.1", "agent")
	assert.ErrorIs(t, err, models.ErrTokenReused)
	assert.Equal(t, "session_abc", revokedID)
	assert.Equal(t, models.RevokeReasonTokenReuse, revokedReason)

	require.Len(t, events.Events, 1)
	assert.Equal(t, models.EventSuspiciousActivity, events.Events[0].EventType)
	assert.Equal(t, models.SeverityCritical, events.Events[0].Severity)
}

func TestRefreshGarbageToken(t *testing.T) {
	svc, _, _ := newSessionFixture(true)

	_, err := svc.Refresh(context.Background(), "never-issued", "10.0.0.1", "agent")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestRefreshRevokedSession(t *testing.T) {
	svc, store, _ := newSessionFixture(true)

	token := "refresh-token"
	store.GetByRefreshTokenHashFunc = func(ctx context.Context, hash string) (*models.Session, error) {
		return &models.Session{
			ID: "session_abc", UserID: "user_123",
			RefreshTokenHash: hash,
			IsActive:         false,
			ExpiresAt:        time.Now().Add(time.Hour),
		}, nil
	}

	_, err := svc.Refresh(context.Background(), token, "10.0.0.1", "agent")
	assert.ErrorIs(t, err, models.ErrTokenRevoked)
}

func TestRefreshExpiredSession(t *testing.T) {
	svc, store, _ := newSessionFixture(true)

	store.GetByRefreshTokenHashFunc = func(ctx context.Context, hash string) (*models.Session, error) {
		return &models.Session{
			ID: "session_abc", UserID: "user_123",
			RefreshTokenHash: hash,
			IsActive:         true,
			ExpiresAt:        time.Now().Add(-time.Minute),
		}, nil
	}

	_, err := svc.Refresh(context.Background(), "refresh-token", "10.0.0.1", "agent")
	assert.ErrorIs(t, err, models.ErrTokenExpired)
}

func TestRefreshWithoutRotationKeepsToken(t *testing.T) {
	svc, store, _ := newSessionFixture(false)

	token := "stable-refresh-token"
	store.GetByRefreshTokenHashFunc = func(ctx context.Context, hash string) (*models.Session, error) {
		return &models.Session{
			ID: "session_abc", UserID: "user_123",
			RefreshTokenHash: hash,
			IsActive:         true,
			ExpiresAt:        time.Now().Add(time.Hour),
		}, nil
	}
	store.RotateFunc = func(ctx context.Context, sessionID, oldHash, newHash string) (*models.Session, error) {
		t.Fatal("rotation disabled, Rotate must not be called")
		return nil, nil
	}

	pair, err := svc.Refresh(context.Background(), token, "10.0.0.1", "agent")
	require.NoError(t, err)
	assert.Equal(t, token, pair.RefreshToken)
}

func TestIsActive(t *testing.T) {
	svc, store, _ := newSessionFixture(true)

	store.GetByIDFunc = func(ctx context.Context, id string) (*models.Session, error) {
		switch id {
		case "live":
			return &models.Session{ID: id, IsActive: true, ExpiresAt: time.Now().Add(time.Hour)}, nil
		case "revoked":
			return &models.Session{ID: id, IsActive: false, ExpiresAt: time.Now().Add(time.Hour)}, nil
		}
		return nil, models.ErrNotFound
	}

	active, err := svc.IsActive(context.Background(), "live")
	require.NoError(t, err)
	assert.True(t, active)

	active, err = svc.IsActive(context.Background(), "revoked")
	require.NoError(t, err)
	assert.False(t, active)

	active, err = svc.IsActive(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestRevokeChecksOwnership(t *testing.T) {
	svc, store, _ := newSessionFixture(true)

	store.GetByIDFunc = func(ctx context.Context, id string) (*models.Session, error) {
		return &models.Session{ID: id, UserID: "someone_else", IsActive: true}, nil
	}

	err := svc.Revoke(context.Background(), "user_123", "session_abc", models.RevokeReasonLogout)
	assert.ErrorIs(t, err, models.ErrForbidden)
}
