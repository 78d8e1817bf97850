package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/auth"
	"github.com/McGuireTechnology/truledgr-auth/internal/config"
	"github.com/McGuireTechnology/truledgr-auth/internal/metrics"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
)

// SessionStore is the persistence surface for sessions.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) (*models.Session, error)
	GetByID(ctx context.Context, id string) (*models.Session, error)
	GetByRefreshTokenHash(ctx context.Context, hash string) (*models.Session, error)
	GetByPreviousTokenHash(ctx context.Context, hash string) (*models.Session, error)
	ListActiveForUser(ctx context.Context, userID string) ([]*models.Session, error)
	Rotate(ctx context.Context, sessionID, currentHash, newHash string) (*models.Session, error)
	Touch(ctx context.Context, id string) error
	Revoke(ctx context.Context, id, reason string) error
	RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error)
}

// SessionService owns the session lifecycle and the refresh token contract:
// opaque tokens, hashed at rest, rotated on use, with reuse detection that
// revokes the whole session.
type SessionService struct {
	store    SessionStore
	tokens   *auth.TokenManager
	security *SecurityService
	cfg      config.AuthConfig
	logger   *slog.Logger
}

func NewSessionService(store SessionStore, tokens *auth.TokenManager, security *SecurityService, cfg config.AuthConfig, log *slog.Logger) *SessionService {
	return &SessionService{store: store, tokens: tokens, security: security, cfg: cfg, logger: log}
}

// Issue creates a session for an authenticated user and mints its token pair.
func (s *SessionService) Issue(ctx context.Context, userID, ip, userAgent string) (*models.TokenPair, error) {
	refreshToken, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	session, err := s.store.Create(ctx, &models.Session{
		UserID:           userID,
		RefreshTokenHash: refreshHash,
		IPAddress:        ip,
		UserAgent:        userAgent,
		ExpiresAt:        time.Now().Add(s.cfg.RefreshTokenExpiry),
	})
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.GenerateAccessToken(userID, session.ID)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    session.ID,
		ExpiresIn:    int64(s.tokens.AccessTokenExpiry().Seconds()),
	}, nil
}

// IsActive reports whether a session exists and is live. Used by the access
// token middleware as the authoritative revocation check.
func (s *SessionService) IsActive(ctx context.Context, sessionID string) (bool, error) {
	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return session.Live(time.Now()), nil
}

// Refresh exchanges a valid refresh token for a fresh token pair. With
// rotation enabled the presented token is retired in the same step; a
// replayed retired token revokes the session it belonged to.
func (s *SessionService) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*models.TokenPair, error) {
	hash := auth.HashRefreshToken(refreshToken)

	session, err := s.store.GetByRefreshTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.handleUnknownToken(ctx, hash, ip, userAgent)
		}
		return nil, err
	}

	now := time.Now()
	if !session.IsActive {
		return nil, models.ErrTokenRevoked
	}
	if !now.Before(session.ExpiresAt) {
		return nil, models.ErrTokenExpired
	}

	if !s.cfg.RefreshRotation {
		if err := s.store.Touch(ctx, session.ID); err != nil {
			return nil, err
		}
		accessToken, err := s.tokens.GenerateAccessToken(session.UserID, session.ID)
		if err != nil {
			return nil, err
		}
		return &models.TokenPair{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			SessionID:    session.ID,
			ExpiresIn:    int64(s.tokens.AccessTokenExpiry().Seconds()),
		}, nil
	}

	newToken, newHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	rotated, err := s.store.Rotate(ctx, session.ID, hash, newHash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Lost the rotation race; the winner already retired this token.
			return nil, s.handleUnknownToken(ctx, hash, ip, userAgent)
		}
		return nil, err
	}

	accessToken, err := s.tokens.GenerateAccessToken(rotated.UserID, rotated.ID)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newToken,
		SessionID:    rotated.ID,
		ExpiresIn:    int64(s.tokens.AccessTokenExpiry().Seconds()),
	}, nil
}

// handleUnknownToken distinguishes garbage tokens from retired ones. A token
// matching a session's previous hash is a replay: the session is revoked and
// the incident recorded.
func (s *SessionService) handleUnknownToken(ctx context.Context, hash, ip, userAgent string) error {
	session, err := s.store.GetByPreviousTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		return err
	}

	if err := s.store.Revoke(ctx, session.ID, models.RevokeReasonTokenReuse); err != nil {
		s.logger.Error("failed to revoke session after token reuse",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
	}

	metrics.RecordTokenReuse()
	s.logger.Warn("refresh token reuse detected",
		slog.String("session_id", session.ID),
		slog.String("user_id", session.UserID),
	)

	s.security.Record(ctx, &models.SecurityEvent{
		EventType: models.EventSuspiciousActivity,
		Severity:  models.SeverityCritical,
		ActorID:   &session.UserID,
		IPAddress: ip,
		UserAgent: userAgent,
		Details: models.EventDetails{
			"reason":     "refresh_token_reuse",
			"session_id": session.ID,
		},
	})

	return models.ErrTokenReused
}

// Get returns a session by id.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.store.GetByID(ctx, sessionID)
}

// List returns the user's active sessions.
func (s *SessionService) List(ctx context.Context, userID string) ([]*models.Session, error) {
	return s.store.ListActiveForUser(ctx, userID)
}

// Revoke ends one session. Callers may only revoke their own sessions; the
// ownership check lives here so every surface enforces it.
func (s *SessionService) Revoke(ctx context.Context, userID, sessionID, reason string) error {
	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return models.ErrForbidden
	}
	return s.store.Revoke(ctx, sessionID, reason)
}

// RevokeAll ends every active session for the user.
func (s *SessionService) RevokeAll(ctx context.Context, userID, reason string) (int64, error) {
	return s.store.RevokeAllForUser(ctx, userID, reason)
}
