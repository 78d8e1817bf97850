package repositories

import (
	"context"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/database"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type RBACRepository struct {
	db *database.DB
}

func NewRBACRepository(db *database.DB) *RBACRepository {
	return &RBACRepository{db: db}
}

const roleColumns = `id, name, description, is_active, deleted_at, created_at, updated_at`

func scanRoleRow(scanner rowScanner) (*models.Role, error) {
	var role models.Role

	err := scanner.Scan(
		&role.ID, &role.Name, &role.Description, &role.IsActive,
		&role.DeletedAt, &role.CreatedAt, &role.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &role, nil
}

func (r *RBACRepository) CreateRole(ctx context.Context, role *models.Role) (*models.Role, error) {
	role.ID = uuid.New().String()
	now := time.Now()

	query := `
		INSERT INTO roles (id, name, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, true, $4, $4)
		RETURNING ` + roleColumns

	return scanRoleRow(r.db.Pool.QueryRow(ctx, query, role.ID, role.Name, role.Description, now))
}

func (r *RBACRepository) GetRole(ctx context.Context, id string) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1 AND deleted_at IS NULL`
	return scanRoleRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *RBACRepository) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE name = $1 AND deleted_at IS NULL`
	return scanRoleRow(r.db.Pool.QueryRow(ctx, query, name))
}

func (r *RBACRepository) ListRoles(ctx context.Context) ([]*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE deleted_at IS NULL ORDER BY name`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		role, err := scanRoleRow(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// DeleteRole soft-deletes the role and removes its assignments so resolved
// permission sets stop including it immediately.
func (r *RBACRepository) DeleteRole(ctx context.Context, id string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx,
			`UPDATE roles SET deleted_at = now(), is_active = false, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
			id,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if cmd.RowsAffected() == 0 {
			return models.ErrRoleNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, id); err != nil {
			return database.MapPostgresError(err)
		}
		_, err = tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id)
		return database.MapPostgresError(err)
	})
}

func scanPermissionRow(scanner rowScanner) (*models.Permission, error) {
	var perm models.Permission

	err := scanner.Scan(
		&perm.ID, &perm.Resource, &perm.Action, &perm.Description,
		&perm.DeletedAt, &perm.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &perm, nil
}

const permissionColumns = `id, resource, action, description, deleted_at, created_at`

// EnsurePermission creates the resource/action pair if it does not exist yet
// and returns the row either way.
func (r *RBACRepository) EnsurePermission(ctx context.Context, resource, action, description string) (*models.Permission, error) {
	query := `
		INSERT INTO permissions (id, resource, action, description, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (resource, action) DO UPDATE SET description = permissions.description
		RETURNING ` + permissionColumns

	return scanPermissionRow(r.db.Pool.QueryRow(ctx, query, uuid.New().String(), resource, action, description))
}

func (r *RBACRepository) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE deleted_at IS NULL ORDER BY resource, action`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var perms []*models.Permission
	for rows.Next() {
		perm, err := scanPermissionRow(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

func (r *RBACRepository) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, roleID, permissionID)
	return database.MapPostgresError(err)
}

func (r *RBACRepository) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID,
	)
	return database.MapPostgresError(err)
}

func (r *RBACRepository) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT DO NOTHING
	`, userID, roleID)
	return database.MapPostgresError(err)
}

func (r *RBACRepository) RemoveRole(ctx context.Context, userID, roleID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`,
		userID, roleID,
	)
	return database.MapPostgresError(err)
}

func (r *RBACRepository) RolesForUser(ctx context.Context, userID string) ([]*models.Role, error) {
	query := `
		SELECT r.id, r.name, r.description, r.is_active, r.deleted_at, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1 AND r.deleted_at IS NULL AND r.is_active = true
		ORDER BY r.name
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		role, err := scanRoleRow(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// PermissionsForUser resolves the effective permission set through active,
// non-deleted roles only. Reads go straight to the store; there is no cache
// layer, so grants and revocations are visible on the next check.
func (r *RBACRepository) PermissionsForUser(ctx context.Context, userID string) ([]models.Permission, error) {
	query := `
		SELECT DISTINCT p.id, p.resource, p.action, p.description, p.deleted_at, p.created_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN roles r ON r.id = rp.role_id
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
			AND p.deleted_at IS NULL
			AND r.deleted_at IS NULL AND r.is_active = true
		ORDER BY p.resource, p.action
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var perms []models.Permission
	for rows.Next() {
		perm, err := scanPermissionRow(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *perm)
	}
	return perms, rows.Err()
}
