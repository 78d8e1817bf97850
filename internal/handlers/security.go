package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/McGuireTechnology/truledgr-auth/internal/auth"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/McGuireTechnology/truledgr-auth/internal/repositories"
	pkghttp "github.com/McGuireTechnology/truledgr-auth/pkg/http"
)

// SecurityServiceInterface defines the interface for the audit trail surface
type SecurityServiceInterface interface {
	ListEvents(ctx context.Context, filter repositories.EventFilter) ([]*models.SecurityEvent, error)
	Metrics(ctx context.Context, window time.Duration) ([]models.EventCount, error)
}

// LockoutAdminInterface defines the interface for lockout administration
type LockoutAdminInterface interface {
	ListActive(ctx context.Context) ([]*models.AccountLockout, error)
	Unlock(ctx context.Context, lockoutID, adminID, ip string) (*models.AccountLockout, error)
}

// SecurityHandler handles the security admin surface
type SecurityHandler struct {
	service  SecurityServiceInterface
	lockouts LockoutAdminInterface
	ipConfig *pkghttp.IPConfig
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(service SecurityServiceInterface, lockouts LockoutAdminInterface, ipConfig *pkghttp.IPConfig) *SecurityHandler {
	return &SecurityHandler{service: service, lockouts: lockouts, ipConfig: ipConfig}
}

// SecurityEventResponse is one audit record in a listing
type SecurityEventResponse struct {
	ID        string                 `json:"id"`
	EventType string                 `json:"event_type"`
	Severity  string                 `json:"severity"`
	ActorID   *string                `json:"actor_id,omitempty"`
	IPAddress string                 `json:"ip_address"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// LockoutResponse is one lockout record for the admin surface
type LockoutResponse struct {
	ID             string     `json:"id"`
	AccountKey     string     `json:"account_key"`
	FailedAttempts int        `json:"failed_attempts"`
	LockoutCycles  int        `json:"lockout_cycles"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`
	UnlockAt       *time.Time `json:"unlock_at,omitempty"`
}

// ListEvents returns audit events, newest first
func (h *SecurityHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter := repositories.EventFilter{
		EventType: r.URL.Query().Get("type"),
		ActorID:   r.URL.Query().Get("actor_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			filter.Limit = limit
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil {
			filter.Offset = offset
		}
	}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid since timestamp, expected RFC 3339")
			return
		}
		filter.Since = since
	}

	events, err := h.service.ListEvents(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]SecurityEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, SecurityEventResponse{
			ID:        e.ID,
			EventType: e.EventType,
			Severity:  e.Severity,
			ActorID:   e.ActorID,
			IPAddress: e.IPAddress,
			UserAgent: e.UserAgent,
			Details:   e.Details,
			CreatedAt: e.CreatedAt,
		})
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

// Metrics returns event counts over a trailing window
func (h *SecurityHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			pkghttp.WriteBadRequest(w, "Invalid window duration")
			return
		}
		window = parsed
	}

	counts, err := h.service.Metrics(r.Context(), window)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"window": window.String(),
		"counts": counts,
	})
}

// ListLockouts returns currently active lockouts
func (h *SecurityHandler) ListLockouts(w http.ResponseWriter, r *http.Request) {
	lockouts, err := h.lockouts.ListActive(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]LockoutResponse, 0, len(lockouts))
	for _, l := range lockouts {
		out = append(out, LockoutResponse{
			ID:             l.ID,
			AccountKey:     l.AccountKey,
			FailedAttempts: l.FailedAttempts,
			LockoutCycles:  l.LockoutCycles,
			LockedAt:       l.LockedAt,
			UnlockAt:       l.UnlockAt,
		})
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"lockouts": out})
}

// Unlock releases a lockout early
func (h *SecurityHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	lockoutID := chi.URLParam(r, "lockoutID")
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	lockout, err := h.lockouts.Unlock(r.Context(), lockoutID, claims.UserID, ipAddress)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LockoutResponse{
		ID:             lockout.ID,
		AccountKey:     lockout.AccountKey,
		FailedAttempts: lockout.FailedAttempts,
		LockoutCycles:  lockout.LockoutCycles,
	})
}
