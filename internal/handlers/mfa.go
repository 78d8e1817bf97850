package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/McGuireTechnology/truledgr-auth/internal/auth"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/McGuireTechnology/truledgr-auth/internal/services"
	pkghttp "github.com/McGuireTechnology/truledgr-auth/pkg/http"
)

// MFAServiceInterface defines the interface for TOTP enrollment management
type MFAServiceInterface interface {
	Enrolled(ctx context.Context, userID string) (bool, error)
	Setup(ctx context.Context, userID, accountName string) (*services.MFASetup, error)
	Enable(ctx context.Context, userID, code string) error
	Disable(ctx context.Context, userID string) error
	VerifyCode(ctx context.Context, userID, code string) error
	BackupCodesRemaining(ctx context.Context, userID string) (int, error)
}

// MFAUserLookup resolves the account name shown in authenticator apps.
type MFAUserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// MFAHandler handles TOTP enrollment HTTP requests
type MFAHandler struct {
	service MFAServiceInterface
	users   MFAUserLookup
}

// NewMFAHandler creates a new MFAHandler
func NewMFAHandler(service MFAServiceInterface, users MFAUserLookup) *MFAHandler {
	return &MFAHandler{service: service, users: users}
}

// MFACodeRequest carries a TOTP code
type MFACodeRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// MFASetupResponse is the enrollment material, shown once
type MFASetupResponse struct {
	Secret      string   `json:"secret"`
	QRCode      string   `json:"qr_code"`
	BackupCodes []string `json:"backup_codes"`
}

// MFAStatusResponse reports the caller's enrollment state
type MFAStatusResponse struct {
	Enabled              bool `json:"enabled"`
	BackupCodesRemaining int  `json:"backup_codes_remaining"`
}

// Status reports whether the caller has MFA enabled
func (h *MFAHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	enabled, err := h.service.Enrolled(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := MFAStatusResponse{Enabled: enabled}
	if enabled {
		remaining, err := h.service.BackupCodesRemaining(r.Context(), claims.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp.BackupCodesRemaining = remaining
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Setup starts TOTP enrollment for the caller
func (h *MFAHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	user, err := h.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	setup, err := h.service.Setup(r.Context(), claims.UserID, user.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MFASetupResponse{
		Secret:      setup.Secret,
		QRCode:      setup.QRDataURL,
		BackupCodes: setup.BackupCodes,
	})
}

// Enable activates a pending enrollment after the caller proves possession
func (h *MFAHandler) Enable(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req MFACodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Enable(r.Context(), claims.UserID, strings.TrimSpace(req.Code)); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"enabled": true})
}

// Disable removes the caller's enrollment. A current code is required so a
// hijacked session cannot silently strip the second factor.
func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req MFACodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.VerifyCode(r.Context(), claims.UserID, strings.TrimSpace(req.Code)); err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.service.Disable(r.Context(), claims.UserID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
