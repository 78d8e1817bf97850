package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/auth"
	"github.com/McGuireTechnology/truledgr-auth/internal/config"
	"github.com/McGuireTechnology/truledgr-auth/internal/metrics"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/McGuireTechnology/truledgr-auth/internal/oauth"
	"github.com/google/uuid"
)

// OAuthStore is the persistence surface for linked accounts and state nonces.
type OAuthStore interface {
	GetAccount(ctx context.Context, provider, providerUserID string) (*models.OAuthAccount, error)
	ListAccountsForUser(ctx context.Context, userID string) ([]*models.OAuthAccount, error)
	CreateAccount(ctx context.Context, account *models.OAuthAccount) (*models.OAuthAccount, error)
	UpdateTokens(ctx context.Context, account *models.OAuthAccount) error
	CreateState(ctx context.Context, state *models.OAuthState) error
	ConsumeState(ctx context.Context, state string) (*models.OAuthState, error)
}

// OAuthUserStore is the slice of user persistence federation needs.
type OAuthUserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// OAuthService runs the authorization-code federation flow: redirect with a
// single-use state nonce, callback with atomic state consumption, then
// resolve the external identity onto a local user.
type OAuthService struct {
	providers *oauth.Registry
	store     OAuthStore
	users     OAuthUserStore
	sessions  *SessionService
	lockouts  *LockoutService
	security  *SecurityService
	box       *auth.SecretBox
	cfg       config.OAuthConfig
	logger    *slog.Logger
}

func NewOAuthService(
	providers *oauth.Registry,
	store OAuthStore,
	users OAuthUserStore,
	sessions *SessionService,
	lockouts *LockoutService,
	security *SecurityService,
	box *auth.SecretBox,
	cfg config.OAuthConfig,
	log *slog.Logger,
) *OAuthService {
	return &OAuthService{
		providers: providers,
		store:     store,
		users:     users,
		sessions:  sessions,
		lockouts:  lockouts,
		security:  security,
		box:       box,
		cfg:       cfg,
		logger:    log,
	}
}

// Providers returns the registered provider names.
func (s *OAuthService) Providers() []string {
	return s.providers.Names()
}

// Begin issues a state nonce and returns the provider's authorization URL.
func (s *OAuthService) Begin(ctx context.Context, providerName string) (string, error) {
	provider, err := s.providers.Lookup(providerName)
	if err != nil {
		return "", err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(raw)

	if err := s.store.CreateState(ctx, &models.OAuthState{
		State:     state,
		Provider:  provider.Name(),
		ExpiresAt: time.Now().Add(s.cfg.StateTTL),
	}); err != nil {
		return "", err
	}

	return provider.AuthCodeURL(state), nil
}

// Callback completes the flow: the state must consume atomically and match
// the provider, then the code is exchanged and the identity resolved onto a
// local user. Any state failure is terminal for this attempt.
func (s *OAuthService) Callback(ctx context.Context, providerName, state, code, ip, userAgent string) (*models.TokenPair, error) {
	provider, err := s.providers.Lookup(providerName)
	if err != nil {
		return nil, err
	}

	consumed, err := s.store.ConsumeState(ctx, state)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrOAuthStateInvalid
		}
		return nil, err
	}
	if consumed.Provider != provider.Name() {
		return nil, models.ErrOAuthStateInvalid
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	defer cancel()

	token, err := provider.ExchangeCode(exchangeCtx, code)
	if err != nil {
		return nil, err
	}

	identity, err := provider.FetchIdentity(exchangeCtx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.resolveUser(ctx, provider.Name(), identity, token)
	if err != nil {
		return nil, err
	}

	if !user.Authenticatable() {
		return nil, models.ErrAccountDisabled
	}
	if err := s.lockouts.Check(ctx, strings.ToLower(user.Email)); err != nil {
		return nil, err
	}

	pair, err := s.sessions.Issue(ctx, user.ID, ip, userAgent)
	if err != nil {
		return nil, err
	}

	metrics.RecordLogin(metrics.OutcomeOAuthLogin)
	s.security.Record(ctx, &models.SecurityEvent{
		EventType: models.EventOAuthLogin,
		Severity:  models.SeverityLow,
		ActorID:   &user.ID,
		IPAddress: ip,
		UserAgent: userAgent,
		Details: models.EventDetails{
			"provider":   provider.Name(),
			"session_id": pair.SessionID,
		},
	})

	return pair, nil
}

// resolveUser maps an external identity to a local user: an existing link
// wins, then a verified-email match links a new account, then a fresh user
// is provisioned. Unverified provider emails never auto-link to an existing
// account.
func (s *OAuthService) resolveUser(ctx context.Context, providerName string, identity *oauth.Identity, token *oauth.Token) (*models.User, error) {
	account, err := s.store.GetAccount(ctx, providerName, identity.ProviderUserID)
	if err == nil {
		account.ProviderEmail = identity.Email
		if err := s.sealTokens(account, token); err != nil {
			return nil, err
		}
		if err := s.store.UpdateTokens(ctx, account); err != nil {
			return nil, err
		}
		return s.users.GetByID(ctx, account.UserID)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	var user *models.User
	if identity.EmailVerified && identity.Email != "" {
		existing, err := s.users.GetByEmail(ctx, identity.Email)
		if err == nil {
			user = existing
		} else if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	if user == nil {
		created, err := s.users.Create(ctx, &models.User{
			Username:   usernameFromIdentity(identity),
			Email:      identity.Email,
			IsActive:   true,
			IsVerified: identity.EmailVerified,
		})
		if err != nil {
			return nil, err
		}
		user = created

		s.logger.Info("provisioned user from oauth identity",
			slog.String("user_id", user.ID),
			slog.String("provider", providerName),
		)
	}

	newAccount := &models.OAuthAccount{
		UserID:         user.ID,
		Provider:       providerName,
		ProviderUserID: identity.ProviderUserID,
		ProviderEmail:  identity.Email,
	}
	if err := s.sealTokens(newAccount, token); err != nil {
		return nil, err
	}
	if _, err := s.store.CreateAccount(ctx, newAccount); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *OAuthService) sealTokens(account *models.OAuthAccount, token *oauth.Token) error {
	enc, nonce, err := s.box.Seal([]byte(token.AccessToken))
	if err != nil {
		return err
	}
	account.AccessTokenEnc = enc
	account.AccessTokenNonce = nonce

	if token.RefreshToken != "" {
		enc, nonce, err = s.box.Seal([]byte(token.RefreshToken))
		if err != nil {
			return err
		}
		account.RefreshTokenEnc = enc
		account.RefreshTokenNonce = nonce
	}
	return nil
}

// usernameFromIdentity derives a username for a provisioned account. The
// random suffix avoids collisions with existing local usernames.
func usernameFromIdentity(identity *oauth.Identity) string {
	base := identity.Email
	if at := strings.IndexByte(base, '@'); at > 0 {
		base = base[:at]
	}
	if base == "" {
		base = "user"
	}
	return base + "-" + uuid.New().String()[:8]
}
