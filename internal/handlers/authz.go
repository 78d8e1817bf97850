package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/McGuireTechnology/truledgr-auth/internal/auth"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	pkghttp "github.com/McGuireTechnology/truledgr-auth/pkg/http"
)

// RBACServiceInterface defines the interface for the policy engine
type RBACServiceInterface interface {
	Authorize(ctx context.Context, userID, resource, action string) (bool, error)
	Require(ctx context.Context, userID, resource, action string) error
	EffectivePermissions(ctx context.Context, userID string) ([]string, error)
	CreateRole(ctx context.Context, name, description string) (*models.Role, error)
	GetRole(ctx context.Context, id string) (*models.Role, error)
	ListRoles(ctx context.Context) ([]*models.Role, error)
	DeleteRole(ctx context.Context, id string) error
	ListPermissions(ctx context.Context) ([]*models.Permission, error)
	GrantPermission(ctx context.Context, roleID, resource, action string) error
	RevokePermission(ctx context.Context, roleID, permissionID string) error
	AssignRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	RolesForUser(ctx context.Context, userID string) ([]*models.Role, error)
}

// AuthzHandler handles authorization checks and role administration
type AuthzHandler struct {
	service RBACServiceInterface
}

// NewAuthzHandler creates a new AuthzHandler
func NewAuthzHandler(service RBACServiceInterface) *AuthzHandler {
	return &AuthzHandler{service: service}
}

// Request DTOs

// CheckRequest asks whether a principal holds a permission. UserID is
// optional; empty means the caller.
type CheckRequest struct {
	UserID   string `json:"user_id"`
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
}

// CreateRoleRequest creates a role
type CreateRoleRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=256"`
}

// GrantPermissionRequest attaches a permission to a role
type GrantPermissionRequest struct {
	Resource string `json:"resource" validate:"required,min=1,max=64"`
	Action   string `json:"action" validate:"required,min=1,max=64"`
}

// AssignRoleRequest binds a role to a user
type AssignRoleRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// Response DTOs

// CheckResponse is an authorization decision
type CheckResponse struct {
	Allowed bool `json:"allowed"`
}

// RoleResponse is one role in a listing
type RoleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func roleResponse(role *models.Role) RoleResponse {
	return RoleResponse{ID: role.ID, Name: role.Name, Description: role.Description}
}

// Check evaluates a permission for a principal. Checking another user's
// permissions requires the caller to hold role management rights; checking
// your own is always allowed.
func (h *AuthzHandler) Check(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CheckRequest
	if r.Method == http.MethodGet {
		req.Resource = r.URL.Query().Get("resource")
		req.Action = r.URL.Query().Get("action")
		req.UserID = r.URL.Query().Get("user_id")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	subject := req.UserID
	if subject == "" {
		subject = claims.UserID
	}
	if subject != claims.UserID {
		if err := h.service.Require(r.Context(), claims.UserID, "role", "manage"); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	allowed, err := h.service.Authorize(r.Context(), subject, req.Resource, req.Action)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, CheckResponse{Allowed: allowed})
}

// MyPermissions returns the caller's effective permission keys
func (h *AuthzHandler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	keys, err := h.service.EffectivePermissions(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string][]string{"permissions": keys})
}

// CreateRole creates a role
func (h *AuthzHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, roleResponse(role))
}

// ListRoles returns all roles
func (h *AuthzHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]RoleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse(role))
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"roles": out})
}

// GetRole returns one role
func (h *AuthzHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRole(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, roleResponse(role))
}

// DeleteRole soft-deletes a role
func (h *AuthzHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRole(r.Context(), chi.URLParam(r, "roleID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GrantPermission attaches a permission to a role
func (h *AuthzHandler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	var req GrantPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.GrantPermission(r.Context(), chi.URLParam(r, "roleID"), req.Resource, req.Action); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokePermission detaches a permission from a role
func (h *AuthzHandler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RevokePermission(r.Context(), chi.URLParam(r, "roleID"), chi.URLParam(r, "permissionID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignRole binds a role to a user
func (h *AuthzHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var req AssignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.AssignRole(r.Context(), req.UserID, chi.URLParam(r, "roleID")); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListUserRoles returns the roles bound to a user
func (h *AuthzHandler) ListUserRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.RolesForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]RoleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse(role))
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"roles": out})
}

// RemoveRole unbinds a role from a user
func (h *AuthzHandler) RemoveRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
