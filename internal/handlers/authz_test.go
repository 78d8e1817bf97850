package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/McGuireTechnology/truledgr-auth/internal/handlers"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
)

func TestCheckOwnPermission(t *testing.T) {
	mockRBAC := &handlers.MockRBACService{
		AuthorizeFunc: func(ctx context.Context, userID, resource, action string) (bool, error) {
			assert.Equal(t, "user_1", userID)
			return resource == "ledger" && action == "read", nil
		},
	}
	h := handlers.NewAuthzHandler(mockRBAC)

	req := handlers.WithTestClaims(handlers.NewTestRequest(t, "POST", "/authz/check", handlers.CheckRequest{
		Resource: "ledger",
		Action:   "read",
	}), "user_1", "sess_1")
	w := httptest.NewRecorder()
	h.Check(w, req)

	var resp handlers.CheckResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.Allowed)
}

func TestCheckOtherUserRequiresRoleManage(t *testing.T) {
	mockRBAC := &handlers.MockRBACService{
		AuthorizeFunc: func(ctx context.Context, userID, resource, action string) (bool, error) {
			// The caller holds no permissions at all.
			return false, nil
		},
	}
	h := handlers.NewAuthzHandler(mockRBAC)

	req := handlers.WithTestClaims(handlers.NewTestRequest(t, "POST", "/authz/check", handlers.CheckRequest{
		UserID:   "user_2",
		Resource: "ledger",
		Action:   "read",
	}), "user_1", "sess_1")
	w := httptest.NewRecorder()
	h.Check(w, req)

	handlers.AssertErrorResponse(t, w, 403, "forbidden")
}

func TestCheckOtherUserAllowedForAdmin(t *testing.T) {
	mockRBAC := &handlers.MockRBACService{
		AuthorizeFunc: func(ctx context.Context, userID, resource, action string) (bool, error) {
			if userID == "admin_1" && resource == "role" && action == "manage" {
				return true, nil
			}
			return userID == "user_2" && resource == "ledger", nil
		},
	}
	h := handlers.NewAuthzHandler(mockRBAC)

	req := handlers.WithTestClaims(handlers.NewTestRequest(t, "POST", "/authz/check", handlers.CheckRequest{
		UserID:   "user_2",
		Resource: "ledger",
		Action:   "read",
	}), "admin_1", "sess_1")
	w := httptest.NewRecorder()
	h.Check(w, req)

	var resp handlers.CheckResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.Allowed)
}

func TestCheckMissingResource(t *testing.T) {
	h := handlers.NewAuthzHandler(&handlers.MockRBACService{})

	req := handlers.WithTestClaims(handlers.NewTestRequest(t, "POST", "/authz/check", handlers.CheckRequest{
		Action: "read",
	}), "user_1", "sess_1")
	w := httptest.NewRecorder()
	h.Check(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestMyPermissions(t *testing.T) {
	mockRBAC := &handlers.MockRBACService{
		EffectivePermissionsFunc: func(ctx context.Context, userID string) ([]string, error) {
			return []string{"ledger:read", "ledger:write"}, nil
		},
	}
	h := handlers.NewAuthzHandler(mockRBAC)

	req := handlers.WithTestClaims(handlers.NewTestRequest(t, "GET", "/me/permissions", nil), "user_1", "sess_1")
	w := httptest.NewRecorder()
	h.MyPermissions(w, req)

	var resp map[string][]string
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, []string{"ledger:read", "ledger:write"}, resp["permissions"])
}

func TestCreateRole(t *testing.T) {
	h := handlers.NewAuthzHandler(&handlers.MockRBACService{})

	req := handlers.WithTestClaims(handlers.NewTestRequest(t, "POST", "/authorization/roles", handlers.CreateRoleRequest{
		Name:        "auditor",
		Description: "Read-only access to the audit trail",
	}), "admin_1", "sess_1")
	w := httptest.NewRecorder()
	h.CreateRole(w, req)

	var resp handlers.RoleResponse
	handlers.AssertJSONResponse(t, w, 201, &resp)
	assert.Equal(t, "auditor", resp.Name)
}

func TestCreateRoleNameTooShort(t *testing.T) {
	h := handlers.NewAuthzHandler(&handlers.MockRBACService{})

	req := handlers.WithTestClaims(handlers.NewTestRequest(t, "POST", "/authorization/roles", handlers.CreateRoleRequest{
		Name: "x",
	}), "admin_1", "sess_1")
	w := httptest.NewRecorder()
	h.CreateRole(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestGetRoleNotFound(t *testing.T) {
	h := handlers.NewAuthzHandler(&handlers.MockRBACService{})

	req := handlers.WithURLParams(handlers.NewTestRequest(t, "GET", "/authorization/roles/missing", nil), map[string]string{"roleID": "missing"})
	w := httptest.NewRecorder()
	h.GetRole(w, req)

	handlers.AssertErrorResponse(t, w, 404, "not_found")
}

func TestDeleteRole(t *testing.T) {
	var deleted string
	mockRBAC := &handlers.MockRBACService{
		DeleteRoleFunc: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	h := handlers.NewAuthzHandler(mockRBAC)

	req := handlers.WithURLParams(handlers.NewTestRequest(t, "DELETE", "/authorization/roles/role_123", nil), map[string]string{"roleID": "role_123"})
	w := httptest.NewRecorder()
	h.DeleteRole(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "role_123", deleted)
}

func TestGrantPermission(t *testing.T) {
	var gotRole, gotResource, gotAction string
	mockRBAC := &handlers.MockRBACService{
		GrantPermissionFunc: func(ctx context.Context, roleID, resource, action string) error {
			gotRole, gotResource, gotAction = roleID, resource, action
			return nil
		},
	}
	h := handlers.NewAuthzHandler(mockRBAC)

	req := handlers.WithURLParams(handlers.NewTestRequest(t, "POST", "/authorization/roles/role_123/permissions", handlers.GrantPermissionRequest{
		Resource: "ledger",
		Action:   "write",
	}), map[string]string{"roleID": "role_123"})
	w := httptest.NewRecorder()
	h.GrantPermission(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "role_123", gotRole)
	assert.Equal(t, "ledger", gotResource)
	assert.Equal(t, "write", gotAction)
}

func TestGrantPermissionUnknownRole(t *testing.T) {
	mockRBAC := &handlers.MockRBACService{
		GrantPermissionFunc: func(ctx context.Context, roleID, resource, action string) error {
			return models.ErrRoleNotFound
		},
	}
	h := handlers.NewAuthzHandler(mockRBAC)

	req := handlers.WithURLParams(handlers.NewTestRequest(t, "POST", "/authorization/roles/missing/permissions", handlers.GrantPermissionRequest{
		Resource: "ledger",
		Action:   "write",
	}), map[string]string{"roleID": "missing"})
	w := httptest.NewRecorder()
	h.GrantPermission(w, req)

	handlers.AssertErrorResponse(t, w, 404, "not_found")
}

func TestAssignRole(t *testing.T) {
	var gotUser, gotRole string
	mockRBAC := &handlers.MockRBACService{
		AssignRoleFunc: func(ctx context.Context, userID, roleID string) error {
			gotUser, gotRole = userID, roleID
			return nil
		},
	}
	h := handlers.NewAuthzHandler(mockRBAC)

	req := handlers.WithURLParams(handlers.NewTestRequest(t, "POST", "/authorization/roles/role_123/assignments", handlers.AssignRoleRequest{
		UserID: "user_2",
	}), map[string]string{"roleID": "role_123"})
	w := httptest.NewRecorder()
	h.AssignRole(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "user_2", gotUser)
	assert.Equal(t, "role_123", gotRole)
}

func TestListUserRoles(t *testing.T) {
	mockRBAC := &handlers.MockRBACService{
		RolesForUserFunc: func(ctx context.Context, userID string) ([]*models.Role, error) {
			assert.Equal(t, "user_2", userID)
			return []*models.Role{
				{ID: "role_123", Name: "auditor", Description: "read-only access"},
			}, nil
		},
	}
	h := handlers.NewAuthzHandler(mockRBAC)

	req := handlers.WithURLParams(handlers.NewTestRequest(t, "GET", "/authorization/users/user_2/roles", nil), map[string]string{
		"userID": "user_2",
	})
	w := httptest.NewRecorder()
	h.ListUserRoles(w, req)

	var resp map[string][]handlers.RoleResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Len(t, resp["roles"], 1)
	assert.Equal(t, "auditor", resp["roles"][0].Name)
}

func TestRemoveRole(t *testing.T) {
	mockRBAC := &handlers.MockRBACService{
		RemoveRoleFunc: func(ctx context.Context, userID, roleID string) error {
			assert.Equal(t, "user_2", userID)
			assert.Equal(t, "role_123", roleID)
			return nil
		},
	}
	h := handlers.NewAuthzHandler(mockRBAC)

	req := handlers.WithURLParams(handlers.NewTestRequest(t, "DELETE", "/authorization/users/user_2/roles/role_123", nil), map[string]string{
		"userID": "user_2",
		"roleID": "role_123",
	})
	w := httptest.NewRecorder()
	h.RemoveRole(w, req)

	assert.Equal(t, 204, w.Code)
}
