package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	pkghttp "github.com/McGuireTechnology/truledgr-auth/pkg/http"
)

// OAuthServiceInterface defines the interface for the federation flow
type OAuthServiceInterface interface {
	Providers() []string
	Begin(ctx context.Context, providerName string) (string, error)
	Callback(ctx context.Context, providerName, state, code, ip, userAgent string) (*models.TokenPair, error)
}

// OAuthHandler handles the federation redirect and callback endpoints
type OAuthHandler struct {
	service  OAuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewOAuthHandler creates a new OAuthHandler
func NewOAuthHandler(service OAuthServiceInterface, ipConfig *pkghttp.IPConfig) *OAuthHandler {
	return &OAuthHandler{service: service, ipConfig: ipConfig}
}

// ListProviders returns the configured provider names
func (h *OAuthHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, map[string][]string{"providers": h.service.Providers()})
}

// Begin redirects the browser to the provider's authorization endpoint
func (h *OAuthHandler) Begin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	url, err := h.service.Begin(r.Context(), provider)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// Callback completes the flow and issues a local token pair
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")

	if state == "" || code == "" {
		pkghttp.WriteBadRequest(w, "Missing state or code")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	pair, err := h.service.Callback(r.Context(), provider, state, code, ipAddress, userAgent)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}
