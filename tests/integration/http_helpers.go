package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/McGuireTechnology/truledgr-auth/internal/auth"
	"github.com/McGuireTechnology/truledgr-auth/internal/config"
	"github.com/McGuireTechnology/truledgr-auth/internal/database"
	"github.com/McGuireTechnology/truledgr-auth/internal/handlers"
	middlewareCustom "github.com/McGuireTechnology/truledgr-auth/internal/middleware"
	"github.com/McGuireTechnology/truledgr-auth/internal/oauth"
	"github.com/McGuireTechnology/truledgr-auth/internal/routes"
	"github.com/McGuireTechnology/truledgr-auth/internal/services"
	pkghttp "github.com/McGuireTechnology/truledgr-auth/pkg/http"
	pkglogger "github.com/McGuireTechnology/truledgr-auth/pkg/logger"
)

// SentEmail represents a captured email message
type SentEmail struct {
	To    string
	Token string
}

// MockEmailService captures reset emails for test assertions
type MockEmailService struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

// SendPasswordResetEmail records the email instead of delivering it
func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{To: email, Token: token})
	return nil
}

// GetLastEmail returns the most recent email sent
func (m *MockEmailService) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	return &m.SentEmails[len(m.SentEmails)-1]
}

// TestServer wraps httptest.Server with a real database and mocked email
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *MockEmailService
	Config       *config.Config

	TokenManager *auth.TokenManager
	logger       *slog.Logger
}

// NewTestServer wires the full HTTP stack against db, mirroring the
// production composition with email delivery mocked out.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			AllowedOrigins: []string{},
			TrustedProxies: []string{},
		},
		Auth: config.AuthConfig{
			JWTSecret:           "test-secret-32-characters-long-for-testing",
			AccessTokenExpiry:   15 * time.Minute,
			RefreshTokenExpiry:  7 * 24 * time.Hour,
			SessionIdleExpiry:   24 * time.Hour,
			RefreshRotation:     true,
			CleanupInterval:     1 * time.Hour,
			TimingDelayBaseMs:   0,
			TimingDelayJitterMs: 0,
		},
		Lockout: config.LockoutConfig{
			Threshold:      5,
			BaseLockPeriod: 15 * time.Minute,
			MaxLockPeriod:  24 * time.Hour,
			CounterWindow:  1 * time.Hour,
		},
		MFA: config.MFAConfig{
			Issuer:          "TruLedgrTest",
			EncryptionKey:   []byte("test-mfa-encryption-key-32-chars"),
			ChallengeExpiry: 5 * time.Minute,
			BackupCodeCount: 10,
		},
		OAuth: config.OAuthConfig{
			StateTTL:        10 * time.Minute,
			ExchangeTimeout: 10 * time.Second,
			BaseRedirectURL: "http://localhost:8080",
		},
		Email: config.EmailConfig{
			FromAddress:      "noreply@test.local",
			ResetURLBase:     "http://localhost:3000",
			ResetTokenExpiry: 1 * time.Hour,
		},
	}

	userRepo, sessionRepo, lockoutRepo, rbacRepo, oauthRepo, mfaRepo, resetRepo, eventRepo :=
		InitializeRepositories(db)

	mockEmail := &MockEmailService{}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	secretBox, err := auth.NewSecretBox(cfg.MFA.EncryptionKey)
	if err != nil {
		panic(fmt.Sprintf("failed to create secret box: %v", err))
	}
	totpManager := auth.NewTOTPManager(secretBox, cfg.MFA.Issuer)
	timing := auth.NewTimingEqualizer(auth.TimingConfig{
		BaseDelayMs: cfg.Auth.TimingDelayBaseMs,
		JitterMs:    cfg.Auth.TimingDelayJitterMs,
	})

	auditLogger := pkglogger.NewAuditLogger(logger)

	// No providers registered; OAuth endpoints respond with provider errors
	providerRegistry := oauth.NewRegistry()

	securityService := services.NewSecurityService(eventRepo, auditLogger, logger)
	sessionService := services.NewSessionService(sessionRepo, tokenManager, securityService, cfg.Auth, logger)
	lockoutService := services.NewLockoutService(lockoutRepo, userRepo, securityService, cfg.Lockout, logger)
	mfaService := services.NewMFAService(mfaRepo, totpManager, cfg.MFA)
	rbacService := services.NewRBACService(rbacRepo, logger)
	resetService := services.NewPasswordResetService(resetRepo, userRepo, sessionService, mockEmail, securityService, cfg.Email, logger)
	oauthService := services.NewOAuthService(providerRegistry, oauthRepo, userRepo, sessionService, lockoutService, securityService, secretBox, cfg.OAuth, logger)
	authService := services.NewAuthService(userRepo, sessionService, lockoutService, mfaService, securityService, timing, logger)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, sessionService, resetService, ipConfig)
	mfaHandler := handlers.NewMFAHandler(mfaService, userRepo)
	oauthHandler := handlers.NewOAuthHandler(oauthService, ipConfig)
	authzHandler := handlers.NewAuthzHandler(rbacService)
	securityHandler := handlers.NewSecurityHandler(securityService, lockoutService, ipConfig)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, mfaHandler, oauthHandler, authzHandler, securityHandler, tokenManager, sessionService, rbacService)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		EmailService: mockEmail,
		Config:       cfg,
		TokenManager: tokenManager,
		logger:       logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with an access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses a JSON response body into target
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractTokensFromResponse extracts tokens from a login or refresh response
func ExtractTokensFromResponse(resp *http.Response) (accessToken, refreshToken, challengeID string, mfaRequired bool, err error) {
	defer resp.Body.Close()

	var authResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", "", "", false, fmt.Errorf("failed to parse response: %w", err)
	}

	if access, ok := authResp["access_token"].(string); ok {
		accessToken = access
	}
	if refresh, ok := authResp["refresh_token"].(string); ok {
		refreshToken = refresh
	}
	if challenge, ok := authResp["challenge_id"].(string); ok {
		challengeID = challenge
	}
	if required, ok := authResp["mfa_required"].(bool); ok {
		mfaRequired = required
	}

	return
}

// GetErrorCode extracts the error code from an error response
func GetErrorCode(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if code, ok := errResp["error"].(string); ok {
		return code, nil
	}
	return "", nil
}
