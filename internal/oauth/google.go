package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleProvider implements the authorization-code flow against Google.
type GoogleProvider struct {
	config      *oauth2.Config
	client      *resty.Client
	timeout     time.Duration
	userInfoURL string
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// NewGoogleProvider creates a Google provider. redirectURL must be the
// service's own callback endpoint for this provider.
func NewGoogleProvider(clientID, clientSecret, redirectURL string, timeout time.Duration) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		client:      resty.New().SetTimeout(timeout),
		timeout:     timeout,
		userInfoURL: googleUserInfoURL,
	}
}

func (p *GoogleProvider) Name() string {
	return "google"
}

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: google code exchange: %s", models.ErrOAuthProviderUnavailable, err)
	}

	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

func (p *GoogleProvider) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	var info googleUserInfo

	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&info).
		Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("%w: google userinfo: %s", models.ErrOAuthProviderUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: google userinfo returned %d", models.ErrOAuthProviderUnavailable, resp.StatusCode())
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("%w: google userinfo missing subject", models.ErrOAuthProviderUnavailable)
	}

	return &Identity{
		ProviderUserID: info.Sub,
		Email:          info.Email,
		EmailVerified:  info.EmailVerified,
		Name:           info.Name,
	}, nil
}
