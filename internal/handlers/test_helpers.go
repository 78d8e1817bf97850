package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/McGuireTechnology/truledgr-auth/internal/auth"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/McGuireTechnology/truledgr-auth/internal/repositories"
	"github.com/McGuireTechnology/truledgr-auth/internal/services"
)

// NewTestRequest builds a JSON request for handler tests.
func NewTestRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithTestClaims attaches authenticated claims to a request.
func WithTestClaims(r *http.Request, userID, sessionID string) *http.Request {
	claims := &models.AccessClaims{UserID: userID, SessionID: sessionID}
	return r.WithContext(auth.ContextWithClaims(r.Context(), claims))
}

// WithURLParams attaches chi route parameters to a request so handlers that
// read chi.URLParam can be tested without a router.
func WithURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse decodes a response body and checks the status code.
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, status int, out interface{}) {
	t.Helper()
	assert.Equal(t, status, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(out))
}

// AssertErrorResponse checks the status code and machine-readable error code.
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, status int, errorCode string) {
	t.Helper()
	assert.Equal(t, status, w.Code)

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, errorCode, resp.Error)
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc         func(ctx context.Context, username, email, password string) (*models.User, error)
	LoginFunc            func(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error)
	CompleteMFALoginFunc func(ctx context.Context, challengeID, code string, backup bool, ip, userAgent string) (*models.TokenPair, error)
	RefreshFunc          func(ctx context.Context, refreshToken, ip, userAgent string) (*models.TokenPair, error)
	LogoutFunc           func(ctx context.Context, userID, sessionID string) error
	LogoutAllFunc        func(ctx context.Context, userID string) (int64, error)
	ChangePasswordFunc   func(ctx context.Context, userID, currentPassword, newPassword, ip string) error
}

func (m *MockAuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, username, email, password)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Login(ctx context.Context, identifier, password, ip, userAgent string) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, identifier, password, ip, userAgent)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockAuthService) CompleteMFALogin(ctx context.Context, challengeID, code string, backup bool, ip, userAgent string) (*models.TokenPair, error) {
	if m.CompleteMFALoginFunc != nil {
		return m.CompleteMFALoginFunc(ctx, challengeID, code, backup, ip, userAgent)
	}
	return nil, models.ErrMfaInvalid
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*models.TokenPair, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken, ip, userAgent)
	}
	return nil, models.ErrUnauthorized
}

func (m *MockAuthService) Logout(ctx context.Context, userID, sessionID string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, userID, sessionID)
	}
	return nil
}

func (m *MockAuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	if m.LogoutAllFunc != nil {
		return m.LogoutAllFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockAuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ip string) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, userID, currentPassword, newPassword, ip)
	}
	return nil
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	ListFunc   func(ctx context.Context, userID string) ([]*models.Session, error)
	RevokeFunc func(ctx context.Context, userID, sessionID, reason string) error
}

func (m *MockSessionService) List(ctx context.Context, userID string) ([]*models.Session, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID)
	}
	return []*models.Session{}, nil
}

func (m *MockSessionService) Revoke(ctx context.Context, userID, sessionID, reason string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, userID, sessionID, reason)
	}
	return nil
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	RequestFunc func(ctx context.Context, email, ip string) error
	ConfirmFunc func(ctx context.Context, token, newPassword, ip string) error
}

func (m *MockPasswordResetService) Request(ctx context.Context, email, ip string) error {
	if m.RequestFunc != nil {
		return m.RequestFunc(ctx, email, ip)
	}
	return nil
}

func (m *MockPasswordResetService) Confirm(ctx context.Context, token, newPassword, ip string) error {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, token, newPassword, ip)
	}
	return nil
}

// MockMFAService implements MFAServiceInterface for testing
type MockMFAService struct {
	EnrolledFunc             func(ctx context.Context, userID string) (bool, error)
	SetupFunc                func(ctx context.Context, userID, accountName string) (*services.MFASetup, error)
	EnableFunc               func(ctx context.Context, userID, code string) error
	DisableFunc              func(ctx context.Context, userID string) error
	VerifyCodeFunc           func(ctx context.Context, userID, code string) error
	BackupCodesRemainingFunc func(ctx context.Context, userID string) (int, error)
}

func (m *MockMFAService) Enrolled(ctx context.Context, userID string) (bool, error) {
	if m.EnrolledFunc != nil {
		return m.EnrolledFunc(ctx, userID)
	}
	return false, nil
}

func (m *MockMFAService) Setup(ctx context.Context, userID, accountName string) (*services.MFASetup, error) {
	if m.SetupFunc != nil {
		return m.SetupFunc(ctx, userID, accountName)
	}
	return nil, models.ErrInternalServer
}

func (m *MockMFAService) Enable(ctx context.Context, userID, code string) error {
	if m.EnableFunc != nil {
		return m.EnableFunc(ctx, userID, code)
	}
	return nil
}

func (m *MockMFAService) Disable(ctx context.Context, userID string) error {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, userID)
	}
	return nil
}

func (m *MockMFAService) VerifyCode(ctx context.Context, userID, code string) error {
	if m.VerifyCodeFunc != nil {
		return m.VerifyCodeFunc(ctx, userID, code)
	}
	return nil
}

func (m *MockMFAService) BackupCodesRemaining(ctx context.Context, userID string) (int, error) {
	if m.BackupCodesRemainingFunc != nil {
		return m.BackupCodesRemainingFunc(ctx, userID)
	}
	return 0, nil
}

// MockUserLookup implements MFAUserLookup for testing
type MockUserLookup struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.User, error)
}

func (m *MockUserLookup) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return &models.User{ID: id, Email: "user@example.com", IsActive: true}, nil
}

// MockOAuthService implements OAuthServiceInterface for testing
type MockOAuthService struct {
	ProvidersFunc func() []string
	BeginFunc     func(ctx context.Context, providerName string) (string, error)
	CallbackFunc  func(ctx context.Context, providerName, state, code, ip, userAgent string) (*models.TokenPair, error)
}

func (m *MockOAuthService) Providers() []string {
	if m.ProvidersFunc != nil {
		return m.ProvidersFunc()
	}
	return []string{"google", "github"}
}

func (m *MockOAuthService) Begin(ctx context.Context, providerName string) (string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, providerName)
	}
	return "", models.ErrOAuthProviderUnknown
}

func (m *MockOAuthService) Callback(ctx context.Context, providerName, state, code, ip, userAgent string) (*models.TokenPair, error) {
	if m.CallbackFunc != nil {
		return m.CallbackFunc(ctx, providerName, state, code, ip, userAgent)
	}
	return nil, models.ErrOAuthStateInvalid
}

// MockRBACService implements RBACServiceInterface for testing
type MockRBACService struct {
	AuthorizeFunc            func(ctx context.Context, userID, resource, action string) (bool, error)
	EffectivePermissionsFunc func(ctx context.Context, userID string) ([]string, error)
	CreateRoleFunc           func(ctx context.Context, name, description string) (*models.Role, error)
	GetRoleFunc              func(ctx context.Context, id string) (*models.Role, error)
	ListRolesFunc            func(ctx context.Context) ([]*models.Role, error)
	DeleteRoleFunc           func(ctx context.Context, id string) error
	ListPermissionsFunc      func(ctx context.Context) ([]*models.Permission, error)
	GrantPermissionFunc      func(ctx context.Context, roleID, resource, action string) error
	RevokePermissionFunc     func(ctx context.Context, roleID, permissionID string) error
	AssignRoleFunc           func(ctx context.Context, userID, roleID string) error
	RemoveRoleFunc           func(ctx context.Context, userID, roleID string) error
	RolesForUserFunc         func(ctx context.Context, userID string) ([]*models.Role, error)
	RequireFunc              func(ctx context.Context, userID, resource, action string) error
}

func (m *MockRBACService) Authorize(ctx context.Context, userID, resource, action string) (bool, error) {
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, userID, resource, action)
	}
	return false, nil
}

func (m *MockRBACService) Require(ctx context.Context, userID, resource, action string) error {
	if m.RequireFunc != nil {
		return m.RequireFunc(ctx, userID, resource, action)
	}
	allowed, err := m.Authorize(ctx, userID, resource, action)
	if err != nil {
		return err
	}
	if !allowed {
		return models.ErrPermissionDenied
	}
	return nil
}

func (m *MockRBACService) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	if m.EffectivePermissionsFunc != nil {
		return m.EffectivePermissionsFunc(ctx, userID)
	}
	return []string{}, nil
}

func (m *MockRBACService) CreateRole(ctx context.Context, name, description string) (*models.Role, error) {
	if m.CreateRoleFunc != nil {
		return m.CreateRoleFunc(ctx, name, description)
	}
	return &models.Role{ID: "role_123", Name: name, Description: description}, nil
}

func (m *MockRBACService) GetRole(ctx context.Context, id string) (*models.Role, error) {
	if m.GetRoleFunc != nil {
		return m.GetRoleFunc(ctx, id)
	}
	return nil, models.ErrRoleNotFound
}

func (m *MockRBACService) ListRoles(ctx context.Context) ([]*models.Role, error) {
	if m.ListRolesFunc != nil {
		return m.ListRolesFunc(ctx)
	}
	return []*models.Role{}, nil
}

func (m *MockRBACService) DeleteRole(ctx context.Context, id string) error {
	if m.DeleteRoleFunc != nil {
		return m.DeleteRoleFunc(ctx, id)
	}
	return nil
}

func (m *MockRBACService) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	if m.ListPermissionsFunc != nil {
		return m.ListPermissionsFunc(ctx)
	}
	return []*models.Permission{}, nil
}

func (m *MockRBACService) GrantPermission(ctx context.Context, roleID, resource, action string) error {
	if m.GrantPermissionFunc != nil {
		return m.GrantPermissionFunc(ctx, roleID, resource, action)
	}
	return nil
}

func (m *MockRBACService) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	if m.RevokePermissionFunc != nil {
		return m.RevokePermissionFunc(ctx, roleID, permissionID)
	}
	return nil
}

func (m *MockRBACService) AssignRole(ctx context.Context, userID, roleID string) error {
	if m.AssignRoleFunc != nil {
		return m.AssignRoleFunc(ctx, userID, roleID)
	}
	return nil
}

func (m *MockRBACService) RemoveRole(ctx context.Context, userID, roleID string) error {
	if m.RemoveRoleFunc != nil {
		return m.RemoveRoleFunc(ctx, userID, roleID)
	}
	return nil
}

func (m *MockRBACService) RolesForUser(ctx context.Context, userID string) ([]*models.Role, error) {
	if m.RolesForUserFunc != nil {
		return m.RolesForUserFunc(ctx, userID)
	}
	return []*models.Role{}, nil
}

// MockSecurityAdmin implements SecurityServiceInterface for testing
type MockSecurityAdmin struct {
	ListEventsFunc func(ctx context.Context, filter repositories.EventFilter) ([]*models.SecurityEvent, error)
	MetricsFunc    func(ctx context.Context, window time.Duration) ([]models.EventCount, error)
}

func (m *MockSecurityAdmin) ListEvents(ctx context.Context, filter repositories.EventFilter) ([]*models.SecurityEvent, error) {
	if m.ListEventsFunc != nil {
		return m.ListEventsFunc(ctx, filter)
	}
	return []*models.SecurityEvent{}, nil
}

func (m *MockSecurityAdmin) Metrics(ctx context.Context, window time.Duration) ([]models.EventCount, error) {
	if m.MetricsFunc != nil {
		return m.MetricsFunc(ctx, window)
	}
	return []models.EventCount{}, nil
}

// MockLockoutAdmin implements LockoutAdminInterface for testing
type MockLockoutAdmin struct {
	ListActiveFunc func(ctx context.Context) ([]*models.AccountLockout, error)
	UnlockFunc     func(ctx context.Context, lockoutID, adminID, ip string) (*models.AccountLockout, error)
}

func (m *MockLockoutAdmin) ListActive(ctx context.Context) ([]*models.AccountLockout, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return []*models.AccountLockout{}, nil
}

func (m *MockLockoutAdmin) Unlock(ctx context.Context, lockoutID, adminID, ip string) (*models.AccountLockout, error) {
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, lockoutID, adminID, ip)
	}
	return nil, models.ErrNotFound
}
