package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/McGuireTechnology/truledgr-auth/internal/models"
)

// RBACStore is the persistence surface for roles, permissions and bindings.
type RBACStore interface {
	CreateRole(ctx context.Context, role *models.Role) (*models.Role, error)
	GetRole(ctx context.Context, id string) (*models.Role, error)
	GetRoleByName(ctx context.Context, name string) (*models.Role, error)
	ListRoles(ctx context.Context) ([]*models.Role, error)
	DeleteRole(ctx context.Context, id string) error
	EnsurePermission(ctx context.Context, resource, action, description string) (*models.Permission, error)
	ListPermissions(ctx context.Context) ([]*models.Permission, error)
	GrantPermission(ctx context.Context, roleID, permissionID string) error
	RevokePermission(ctx context.Context, roleID, permissionID string) error
	AssignRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	RolesForUser(ctx context.Context, userID string) ([]*models.Role, error)
	PermissionsForUser(ctx context.Context, userID string) ([]models.Permission, error)
}

// RBACService is the policy decision point. Every check resolves the
// effective permission set from the store, so grants and revocations take
// effect on the next authorization decision.
type RBACService struct {
	store  RBACStore
	logger *slog.Logger
}

func NewRBACService(store RBACStore, log *slog.Logger) *RBACService {
	return &RBACService{store: store, logger: log}
}

// Authorize reports whether the user holds the exact resource/action
// permission. Unknown users simply hold no permissions.
func (s *RBACService) Authorize(ctx context.Context, userID, resource, action string) (bool, error) {
	perms, err := s.store.PermissionsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return models.NewPermissionSet(perms).Allows(resource, action), nil
}

// Require is Authorize as a guard: it returns ErrPermissionDenied when the
// user does not hold the permission.
func (s *RBACService) Require(ctx context.Context, userID, resource, action string) error {
	allowed, err := s.Authorize(ctx, userID, resource, action)
	if err != nil {
		return err
	}
	if !allowed {
		return models.ErrPermissionDenied
	}
	return nil
}

// EffectivePermissions returns the user's resolved permission keys.
func (s *RBACService) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	perms, err := s.store.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return models.NewPermissionSet(perms).Keys(), nil
}

func (s *RBACService) CreateRole(ctx context.Context, name, description string) (*models.Role, error) {
	if name == "" {
		return nil, models.ErrBadRequest
	}
	return s.store.CreateRole(ctx, &models.Role{Name: name, Description: description})
}

func (s *RBACService) GetRole(ctx context.Context, id string) (*models.Role, error) {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrRoleNotFound
		}
		return nil, err
	}
	return role, nil
}

func (s *RBACService) ListRoles(ctx context.Context) ([]*models.Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *RBACService) DeleteRole(ctx context.Context, id string) error {
	return s.store.DeleteRole(ctx, id)
}

func (s *RBACService) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	return s.store.ListPermissions(ctx)
}

// GrantPermission attaches a resource/action pair to a role, creating the
// permission row on first use.
func (s *RBACService) GrantPermission(ctx context.Context, roleID, resource, action string) error {
	if resource == "" || action == "" {
		return models.ErrBadRequest
	}

	if _, err := s.GetRole(ctx, roleID); err != nil {
		return err
	}

	perm, err := s.store.EnsurePermission(ctx, resource, action, "")
	if err != nil {
		return err
	}

	return s.store.GrantPermission(ctx, roleID, perm.ID)
}

func (s *RBACService) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return err
	}
	return s.store.RevokePermission(ctx, roleID, permissionID)
}

func (s *RBACService) AssignRole(ctx context.Context, userID, roleID string) error {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return err
	}

	if err := s.store.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}

	s.logger.Info("role assigned",
		slog.String("user_id", userID),
		slog.String("role_id", roleID),
	)
	return nil
}

func (s *RBACService) RemoveRole(ctx context.Context, userID, roleID string) error {
	return s.store.RemoveRole(ctx, userID, roleID)
}

func (s *RBACService) RolesForUser(ctx context.Context, userID string) ([]*models.Role, error) {
	return s.store.RolesForUser(ctx, userID)
}
