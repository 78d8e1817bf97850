package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/McGuireTechnology/truledgr-auth/internal/handlers"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/McGuireTechnology/truledgr-auth/internal/services"
)

func testTokenPair() *models.TokenPair {
	return &models.TokenPair{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		SessionID:    "sess_123",
		ExpiresIn:    900,
	}
}

func TestLoginSuccess(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error) {
			assert.Equal(t, "alice", identifier)
			return &services.LoginResult{Tokens: testTokenPair()}, nil
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Identifier: "alice",
		Password:   "Sup3rSecret!pass",
	})
	w := httptest.NewRecorder()
	h.Login(w, req)

	var resp handlers.TokenResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "access-token", resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(900), resp.ExpiresIn)
}

func TestLoginInvalidCredentials(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error) {
			return nil, models.ErrInvalidCredentials
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Identifier: "alice",
		Password:   "wrong",
	})
	w := httptest.NewRecorder()
	h.Login(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestLoginLockedAccount(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error) {
			return nil, models.ErrAccountLocked
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Identifier: "alice",
		Password:   "whatever",
	})
	w := httptest.NewRecorder()
	h.Login(w, req)

	handlers.AssertErrorResponse(t, w, 423, "account_locked")
}

func TestLoginDisabledAccountLooksLikeBadCredentials(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error) {
			return nil, models.ErrAccountDisabled
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Identifier: "alice",
		Password:   "whatever",
	})
	w := httptest.NewRecorder()
	h.Login(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestLoginMFARequired(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error) {
			return &services.LoginResult{MFARequired: true, ChallengeID: "chal_abc"}, nil
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Identifier: "alice",
		Password:   "Sup3rSecret!pass",
	})
	w := httptest.NewRecorder()
	h.Login(w, req)

	var resp handlers.MFARequiredResponse
	handlers.AssertJSONResponse(t, w, 428, &resp)
	assert.True(t, resp.MFARequired)
	assert.Equal(t, "chal_abc", resp.ChallengeID)
}

func TestLoginMissingFields(t *testing.T) {
	h := handlers.NewAuthHandler(&handlers.MockAuthService{}, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{Identifier: "alice"})
	w := httptest.NewRecorder()
	h.Login(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestLoginMFACompletesChallenge(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		CompleteMFALoginFunc: func(ctx context.Context, challengeID, code string, backup bool, ip, userAgent string) (*models.TokenPair, error) {
			assert.Equal(t, "chal_abc", challengeID)
			assert.Equal(t, "123456", code)
			assert.False(t, backup)
			return testTokenPair(), nil
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/mfa/verify", handlers.MFALoginRequest{
		ChallengeID: "chal_abc",
		Code:        "123456",
	})
	w := httptest.NewRecorder()
	h.LoginMFA(w, req)

	var resp handlers.TokenResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "sess_123", resp.SessionID)
}

func TestLoginMFAInvalidCode(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		CompleteMFALoginFunc: func(ctx context.Context, challengeID, code string, backup bool, ip, userAgent string) (*models.TokenPair, error) {
			return nil, models.ErrMfaInvalid
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/mfa/verify", handlers.MFALoginRequest{
		ChallengeID: "chal_abc",
		Code:        "000000",
	})
	w := httptest.NewRecorder()
	h.LoginMFA(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestRefreshSuccess(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		RefreshFunc: func(ctx context.Context, refreshToken, ip, userAgent string) (*models.TokenPair, error) {
			assert.Equal(t, "old-refresh", refreshToken)
			return testTokenPair(), nil
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/refresh", handlers.RefreshRequest{RefreshToken: "old-refresh"})
	w := httptest.NewRecorder()
	h.Refresh(w, req)

	var resp handlers.TokenResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "refresh-token", resp.RefreshToken)
}

func TestRefreshReusedTokenRejected(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		RefreshFunc: func(ctx context.Context, refreshToken, ip, userAgent string) (*models.TokenPair, error) {
			return nil, models.ErrTokenReused
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/refresh", handlers.RefreshRequest{RefreshToken: "seen-before"})
	w := httptest.NewRecorder()
	h.Refresh(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestLogoutRequiresAuth(t *testing.T) {
	h := handlers.NewAuthHandler(&handlers.MockAuthService{}, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/logout", nil)
	w := httptest.NewRecorder()
	h.Logout(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestLogoutRevokesCurrentSession(t *testing.T) {
	var gotSession string
	mockAuth := &handlers.MockAuthService{
		LogoutFunc: func(ctx context.Context, userID, sessionID string) error {
			gotSession = sessionID
			return nil
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.WithTestClaims(handlers.NewTestRequest(t, "POST", "/auth/logout", nil), "user_1", "sess_123")
	w := httptest.NewRecorder()
	h.Logout(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "sess_123", gotSession)
}

func TestLogoutAllReportsCount(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LogoutAllFunc: func(ctx context.Context, userID string) (int64, error) {
			return 3, nil
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.WithTestClaims(handlers.NewTestRequest(t, "POST", "/auth/logout-all", nil), "user_1", "sess_123")
	w := httptest.NewRecorder()
	h.LogoutAll(w, req)

	var resp map[string]int64
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, int64(3), resp["revoked_sessions"])
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		ChangePasswordFunc: func(ctx context.Context, userID, currentPassword, newPassword, ip string) error {
			return models.ErrInvalidCredentials
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.WithTestClaims(handlers.NewTestRequest(t, "POST", "/auth/password", handlers.ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "N3wSecret!pass",
	}), "user_1", "sess_123")
	w := httptest.NewRecorder()
	h.ChangePassword(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestListSessionsMarksCurrent(t *testing.T) {
	now := time.Now()
	mockSessions := &handlers.MockSessionService{
		ListFunc: func(ctx context.Context, userID string) ([]*models.Session, error) {
			return []*models.Session{
				{ID: "sess_123", UserID: userID, CreatedAt: now, LastActivityAt: now, ExpiresAt: now.Add(time.Hour)},
				{ID: "sess_456", UserID: userID, CreatedAt: now, LastActivityAt: now, ExpiresAt: now.Add(time.Hour)},
			}, nil
		},
	}
	h := handlers.NewAuthHandler(&handlers.MockAuthService{}, mockSessions, &handlers.MockPasswordResetService{}, nil)

	req := handlers.WithTestClaims(handlers.NewTestRequest(t, "GET", "/auth/sessions", nil), "user_1", "sess_123")
	w := httptest.NewRecorder()
	h.ListSessions(w, req)

	var resp struct {
		Sessions []handlers.SessionResponse `json:"sessions"`
	}
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Len(t, resp.Sessions, 2)
	assert.True(t, resp.Sessions[0].Current)
	assert.False(t, resp.Sessions[1].Current)
}

func TestRevokeSessionForbiddenForOtherUser(t *testing.T) {
	mockSessions := &handlers.MockSessionService{
		RevokeFunc: func(ctx context.Context, userID, sessionID, reason string) error {
			return models.ErrForbidden
		},
	}
	h := handlers.NewAuthHandler(&handlers.MockAuthService{}, mockSessions, &handlers.MockPasswordResetService{}, nil)

	req := handlers.WithTestClaims(handlers.NewTestRequest(t, "DELETE", "/auth/sessions/sess_999", nil), "user_1", "sess_123")
	req = handlers.WithURLParams(req, map[string]string{"sessionID": "sess_999"})
	w := httptest.NewRecorder()
	h.RevokeSession(w, req)

	handlers.AssertErrorResponse(t, w, 403, "forbidden")
}

func TestRequestPasswordResetUniformResponse(t *testing.T) {
	for _, email := range []string{"known@example.com", "unknown@example.com"} {
		h := handlers.NewAuthHandler(&handlers.MockAuthService{}, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

		req := handlers.NewTestRequest(t, "POST", "/auth/password-reset", handlers.ResetRequestRequest{Email: email})
		w := httptest.NewRecorder()
		h.RequestPasswordReset(w, req)

		var resp map[string]string
		handlers.AssertJSONResponse(t, w, 202, &resp)
		assert.Contains(t, resp["message"], "If the email is registered")
	}
}

func TestConfirmPasswordResetBadToken(t *testing.T) {
	mockResets := &handlers.MockPasswordResetService{
		ConfirmFunc: func(ctx context.Context, token, newPassword, ip string) error {
			return models.ErrUnauthorized
		},
	}
	h := handlers.NewAuthHandler(&handlers.MockAuthService{}, &handlers.MockSessionService{}, mockResets, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/password-reset/confirm", handlers.ResetConfirmRequest{
		Token:       "garbage",
		NewPassword: "N3wSecret!pass",
	})
	w := httptest.NewRecorder()
	h.ConfirmPasswordReset(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestRegisterCreatesUser(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		RegisterFunc: func(ctx context.Context, username, email, password string) (*models.User, error) {
			assert.Equal(t, "alice@example.com", email)
			return &models.User{ID: "user_1", Username: username, Email: email}, nil
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "Sup3rSecret!pass",
	})
	w := httptest.NewRecorder()
	h.Register(w, req)

	var resp map[string]string
	handlers.AssertJSONResponse(t, w, 201, &resp)
	assert.Equal(t, "user_1", resp["id"])
}

func TestRegisterDuplicateEmail(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		RegisterFunc: func(ctx context.Context, username, email, password string) (*models.User, error) {
			return nil, models.ErrConflict
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "Sup3rSecret!pass",
	})
	w := httptest.NewRecorder()
	h.Register(w, req)

	handlers.AssertErrorResponse(t, w, 409, "conflict")
}

func TestStorageFailureCollapsesTo503(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error) {
			return nil, context.DeadlineExceeded
		},
	}
	h := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionService{}, &handlers.MockPasswordResetService{}, nil)

	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Identifier: "alice",
		Password:   "Sup3rSecret!pass",
	})
	w := httptest.NewRecorder()
	h.Login(w, req)

	handlers.AssertErrorResponse(t, w, 503, "service_unavailable")
}
