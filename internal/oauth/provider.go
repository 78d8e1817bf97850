package oauth

import (
	"context"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/models"
)

// Identity is the provider-asserted external identity resolved after a
// successful code exchange.
type Identity struct {
	ProviderUserID string
	Email          string
	// EmailVerified carries the provider's own assertion. Automatic linking
	// to an existing local account requires it.
	EmailVerified bool
	Name          string
}

// Token holds provider tokens from a code exchange. They are encrypted
// before storage and never returned to clients.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Provider drives the authorization-code flow for one identity provider.
// Implementations are selected from the Registry by name, never by type
// inspection.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*Token, error)
	FetchIdentity(ctx context.Context, accessToken string) (*Identity, error)
}

// Registry is the provider lookup table.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, models.ErrOAuthProviderUnknown
	}
	return p, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
