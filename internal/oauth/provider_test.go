package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lookup(t *testing.T) {
	google := NewGoogleProvider("id", "secret", "http://localhost/cb", time.Second)
	github := NewGitHubProvider("id", "secret", "http://localhost/cb", time.Second)
	reg := NewRegistry(google, github)

	p, err := reg.Lookup("google")
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())

	p, err = reg.Lookup("github")
	require.NoError(t, err)
	assert.Equal(t, "github", p.Name())

	_, err = reg.Lookup("gitlab")
	assert.ErrorIs(t, err, models.ErrOAuthProviderUnknown)
}

func TestGoogleProvider_AuthCodeURL(t *testing.T) {
	p := NewGoogleProvider("client-id", "secret", "http://localhost/auth/oauth/google/callback", time.Second)

	url := p.AuthCodeURL("nonce-123")
	assert.Contains(t, url, "client_id=client-id")
	assert.Contains(t, url, "state=nonce-123")
	assert.Contains(t, url, "accounts.google.com")
}

func TestGoogleProvider_FetchIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":            "google-uid-1",
			"email":          "alice@example.com",
			"email_verified": true,
			"name":           "Alice",
		})
	}))
	defer srv.Close()

	p := NewGoogleProvider("id", "secret", "http://localhost/cb", time.Second)
	p.userInfoURL = srv.URL

	identity, err := p.FetchIdentity(context.Background(), "tok-1")
	require.NoError(t, err)

	assert.Equal(t, "google-uid-1", identity.ProviderUserID)
	assert.Equal(t, "alice@example.com", identity.Email)
	assert.True(t, identity.EmailVerified)
	assert.Equal(t, "Alice", identity.Name)
}

func TestGoogleProvider_FetchIdentity_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewGoogleProvider("id", "secret", "http://localhost/cb", time.Second)
	p.userInfoURL = srv.URL

	_, err := p.FetchIdentity(context.Background(), "tok-1")
	assert.ErrorIs(t, err, models.ErrOAuthProviderUnavailable)
}

func TestGitHubProvider_FetchIdentity_PrimaryEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    int64(4242),
			"login": "bob",
			"name":  "",
		})
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "bob@example.com", "primary": true, "verified": true},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewGitHubProvider("id", "secret", "http://localhost/cb", time.Second)
	p.userURL = srv.URL + "/user"
	p.emailsURL = srv.URL + "/emails"

	identity, err := p.FetchIdentity(context.Background(), "tok-2")
	require.NoError(t, err)

	assert.Equal(t, "4242", identity.ProviderUserID)
	assert.Equal(t, "bob@example.com", identity.Email)
	assert.True(t, identity.EmailVerified)
	assert.Equal(t, "bob", identity.Name, "falls back to login when name is empty")
}
