package oauth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
)

// GitHubProvider implements the authorization-code flow against GitHub.
type GitHubProvider struct {
	config    *oauth2.Config
	client    *resty.Client
	timeout   time.Duration
	userURL   string
	emailsURL string
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func NewGitHubProvider(clientID, clientSecret, redirectURL string, timeout time.Duration) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.GitHub,
			Scopes:       []string{"read:user", "user:email"},
		},
		client:    resty.New().SetTimeout(timeout),
		timeout:   timeout,
		userURL:   githubUserURL,
		emailsURL: githubEmailsURL,
	}
}

func (p *GitHubProvider) Name() string {
	return "github"
}

func (p *GitHubProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *GitHubProvider) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: github code exchange: %s", models.ErrOAuthProviderUnavailable, err)
	}

	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

// FetchIdentity resolves the GitHub account plus its primary email. GitHub
// does not return email verification state on the user object, so the
// emails endpoint is consulted for the primary address.
func (p *GitHubProvider) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	var user githubUser

	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&user).
		Get(p.userURL)
	if err != nil {
		return nil, fmt.Errorf("%w: github user: %s", models.ErrOAuthProviderUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: github user returned %d", models.ErrOAuthProviderUnavailable, resp.StatusCode())
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("%w: github user missing id", models.ErrOAuthProviderUnavailable)
	}

	identity := &Identity{
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          user.Email,
		Name:           user.Name,
	}
	if identity.Name == "" {
		identity.Name = user.Login
	}

	var emails []githubEmail
	resp, err = p.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&emails).
		Get(p.emailsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: github emails: %s", models.ErrOAuthProviderUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: github emails returned %d", models.ErrOAuthProviderUnavailable, resp.StatusCode())
	}

	for _, e := range emails {
		if e.Primary {
			identity.Email = e.Email
			identity.EmailVerified = e.Verified
			break
		}
	}

	return identity, nil
}

// compile-time interface checks
var (
	_ Provider = (*GoogleProvider)(nil)
	_ Provider = (*GitHubProvider)(nil)
)
