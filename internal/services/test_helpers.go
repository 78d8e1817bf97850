package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/McGuireTechnology/truledgr-auth/internal/repositories"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockUserStore implements the user store slices used across services.
type MockUserStore struct {
	GetByIDFunc         func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc      func(ctx context.Context, email string) (*models.User, error)
	GetByIdentifierFunc func(ctx context.Context, identifier string) (*models.User, error)
	CreateFunc          func(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordFunc  func(ctx context.Context, id, passwordHash string) error
	SetLockedFunc       func(ctx context.Context, id string, locked bool) error
}

func (m *MockUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserStore) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	if m.GetByIdentifierFunc != nil {
		return m.GetByIdentifierFunc(ctx, identifier)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserStore) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	user.ID = "user_123"
	return user, nil
}

func (m *MockUserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserStore) SetLocked(ctx context.Context, id string, locked bool) error {
	if m.SetLockedFunc != nil {
		return m.SetLockedFunc(ctx, id, locked)
	}
	return nil
}

// MockSessionStore implements SessionStore for testing
type MockSessionStore struct {
	CreateFunc                 func(ctx context.Context, session *models.Session) (*models.Session, error)
	GetByIDFunc                func(ctx context.Context, id string) (*models.Session, error)
	GetByRefreshTokenHashFunc  func(ctx context.Context, hash string) (*models.Session, error)
	GetByPreviousTokenHashFunc func(ctx context.Context, hash string) (*models.Session, error)
	ListActiveForUserFunc      func(ctx context.Context, userID string) ([]*models.Session, error)
	RotateFunc                 func(ctx context.Context, sessionID, currentHash, newHash string) (*models.Session, error)
	TouchFunc                  func(ctx context.Context, id string) error
	RevokeFunc                 func(ctx context.Context, id, reason string) error
	RevokeAllForUserFunc       func(ctx context.Context, userID, reason string) (int64, error)
}

func (m *MockSessionStore) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	session.ID = "session_123"
	session.IsActive = true
	return session, nil
}

func (m *MockSessionStore) GetByID(ctx context.Context, id string) (*models.Session, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionStore) GetByRefreshTokenHash(ctx context.Context, hash string) (*models.Session, error) {
	if m.GetByRefreshTokenHashFunc != nil {
		return m.GetByRefreshTokenHashFunc(ctx, hash)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionStore) GetByPreviousTokenHash(ctx context.Context, hash string) (*models.Session, error) {
	if m.GetByPreviousTokenHashFunc != nil {
		return m.GetByPreviousTokenHashFunc(ctx, hash)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionStore) ListActiveForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	if m.ListActiveForUserFunc != nil {
		return m.ListActiveForUserFunc(ctx, userID)
	}
	return []*models.Session{}, nil
}

func (m *MockSessionStore) Rotate(ctx context.Context, sessionID, currentHash, newHash string) (*models.Session, error) {
	if m.RotateFunc != nil {
		return m.RotateFunc(ctx, sessionID, currentHash, newHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionStore) Touch(ctx context.Context, id string) error {
	if m.TouchFunc != nil {
		return m.TouchFunc(ctx, id)
	}
	return nil
}

func (m *MockSessionStore) Revoke(ctx context.Context, id, reason string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, id, reason)
	}
	return nil
}

func (m *MockSessionStore) RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error) {
	if m.RevokeAllForUserFunc != nil {
		return m.RevokeAllForUserFunc(ctx, userID, reason)
	}
	return 0, nil
}

// MockLockoutStore implements LockoutStore for testing
type MockLockoutStore struct {
	GetByKeyFunc      func(ctx context.Context, accountKey string) (*models.AccountLockout, error)
	GetByIDFunc       func(ctx context.Context, id string) (*models.AccountLockout, error)
	RecordFailureFunc func(ctx context.Context, accountKey string, ip *string, window time.Duration) (*models.AccountLockout, error)
	ActivateFunc      func(ctx context.Context, id string, unlockAt time.Time) (*models.AccountLockout, error)
	ClearFunc         func(ctx context.Context, accountKey string) error
	UnlockFunc        func(ctx context.Context, id string) (*models.AccountLockout, error)
	ListActiveFunc    func(ctx context.Context, limit int) ([]*models.AccountLockout, error)
}

func (m *MockLockoutStore) GetByKey(ctx context.Context, accountKey string) (*models.AccountLockout, error) {
	if m.GetByKeyFunc != nil {
		return m.GetByKeyFunc(ctx, accountKey)
	}
	return nil, models.ErrNotFound
}

func (m *MockLockoutStore) GetByID(ctx context.Context, id string) (*models.AccountLockout, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockLockoutStore) RecordFailure(ctx context.Context, accountKey string, ip *string, window time.Duration) (*models.AccountLockout, error) {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, accountKey, ip, window)
	}
	return &models.AccountLockout{ID: "lockout_123", AccountKey: accountKey, FailedAttempts: 1}, nil
}

func (m *MockLockoutStore) Activate(ctx context.Context, id string, unlockAt time.Time) (*models.AccountLockout, error) {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, id, unlockAt)
	}
	now := time.Now()
	return &models.AccountLockout{ID: id, IsActive: true, LockedAt: &now, UnlockAt: &unlockAt, LockoutCycles: 1}, nil
}

func (m *MockLockoutStore) Clear(ctx context.Context, accountKey string) error {
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx, accountKey)
	}
	return nil
}

func (m *MockLockoutStore) Unlock(ctx context.Context, id string) (*models.AccountLockout, error) {
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, id)
	}
	return &models.AccountLockout{ID: id}, nil
}

func (m *MockLockoutStore) ListActive(ctx context.Context, limit int) ([]*models.AccountLockout, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, limit)
	}
	return []*models.AccountLockout{}, nil
}

// MockMFAStore implements MFAStore for testing
type MockMFAStore struct {
	GetCredentialFunc          func(ctx context.Context, userID string) (*models.MFACredential, error)
	UpsertCredentialFunc       func(ctx context.Context, cred *models.MFACredential) error
	EnableCredentialFunc       func(ctx context.Context, userID string) error
	MarkStepUsedFunc           func(ctx context.Context, userID string, step int64) (bool, error)
	DeleteCredentialFunc       func(ctx context.Context, userID string) error
	ReplaceBackupCodesFunc     func(ctx context.Context, userID string, codeHashes []string) error
	ConsumeBackupCodeFunc      func(ctx context.Context, userID, codeHash string) (bool, error)
	CountUnusedBackupCodesFunc func(ctx context.Context, userID string) (int, error)
	CreateChallengeFunc        func(ctx context.Context, challenge *models.MFAChallenge) (*models.MFAChallenge, error)
	GetChallengeFunc           func(ctx context.Context, id string) (*models.MFAChallenge, error)
	ConsumeChallengeFunc       func(ctx context.Context, id string) (bool, error)
}

func (m *MockMFAStore) GetCredential(ctx context.Context, userID string) (*models.MFACredential, error) {
	if m.GetCredentialFunc != nil {
		return m.GetCredentialFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockMFAStore) UpsertCredential(ctx context.Context, cred *models.MFACredential) error {
	if m.UpsertCredentialFunc != nil {
		return m.UpsertCredentialFunc(ctx, cred)
	}
	return nil
}

func (m *MockMFAStore) EnableCredential(ctx context.Context, userID string) error {
	if m.EnableCredentialFunc != nil {
		return m.EnableCredentialFunc(ctx, userID)
	}
	return nil
}

func (m *MockMFAStore) MarkStepUsed(ctx context.Context, userID string, step int64) (bool, error) {
	if m.MarkStepUsedFunc != nil {
		return m.MarkStepUsedFunc(ctx, userID, step)
	}
	return true, nil
}

func (m *MockMFAStore) DeleteCredential(ctx context.Context, userID string) error {
	if m.DeleteCredentialFunc != nil {
		return m.DeleteCredentialFunc(ctx, userID)
	}
	return nil
}

func (m *MockMFAStore) ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error {
	if m.ReplaceBackupCodesFunc != nil {
		return m.ReplaceBackupCodesFunc(ctx, userID, codeHashes)
	}
	return nil
}

func (m *MockMFAStore) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	if m.ConsumeBackupCodeFunc != nil {
		return m.ConsumeBackupCodeFunc(ctx, userID, codeHash)
	}
	return false, nil
}

func (m *MockMFAStore) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	if m.CountUnusedBackupCodesFunc != nil {
		return m.CountUnusedBackupCodesFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockMFAStore) CreateChallenge(ctx context.Context, challenge *models.MFAChallenge) (*models.MFAChallenge, error) {
	if m.CreateChallengeFunc != nil {
		return m.CreateChallengeFunc(ctx, challenge)
	}
	challenge.ID = "challenge_123"
	return challenge, nil
}

func (m *MockMFAStore) GetChallenge(ctx context.Context, id string) (*models.MFAChallenge, error) {
	if m.GetChallengeFunc != nil {
		return m.GetChallengeFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockMFAStore) ConsumeChallenge(ctx context.Context, id string) (bool, error) {
	if m.ConsumeChallengeFunc != nil {
		return m.ConsumeChallengeFunc(ctx, id)
	}
	return true, nil
}

// MockSecurityEventStore implements SecurityEventStore for testing
type MockSecurityEventStore struct {
	InsertFunc      func(ctx context.Context, event *models.SecurityEvent) error
	ListFunc        func(ctx context.Context, filter repositories.EventFilter) ([]*models.SecurityEvent, error)
	CountsSinceFunc func(ctx context.Context, since time.Time) ([]models.EventCount, error)

	// Events collects everything inserted when InsertFunc is nil.
	Events []*models.SecurityEvent
}

func (m *MockSecurityEventStore) Insert(ctx context.Context, event *models.SecurityEvent) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, event)
	}
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockSecurityEventStore) List(ctx context.Context, filter repositories.EventFilter) ([]*models.SecurityEvent, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return m.Events, nil
}

func (m *MockSecurityEventStore) CountsSince(ctx context.Context, since time.Time) ([]models.EventCount, error) {
	if m.CountsSinceFunc != nil {
		return m.CountsSinceFunc(ctx, since)
	}
	return []models.EventCount{}, nil
}

// MockOAuthStore implements OAuthStore for testing
type MockOAuthStore struct {
	GetAccountFunc          func(ctx context.Context, provider, providerUserID string) (*models.OAuthAccount, error)
	ListAccountsForUserFunc func(ctx context.Context, userID string) ([]*models.OAuthAccount, error)
	CreateAccountFunc       func(ctx context.Context, account *models.OAuthAccount) (*models.OAuthAccount, error)
	UpdateTokensFunc        func(ctx context.Context, account *models.OAuthAccount) error
	CreateStateFunc         func(ctx context.Context, state *models.OAuthState) error
	ConsumeStateFunc        func(ctx context.Context, state string) (*models.OAuthState, error)
}

func (m *MockOAuthStore) GetAccount(ctx context.Context, provider, providerUserID string) (*models.OAuthAccount, error) {
	if m.GetAccountFunc != nil {
		return m.GetAccountFunc(ctx, provider, providerUserID)
	}
	return nil, models.ErrNotFound
}

func (m *MockOAuthStore) ListAccountsForUser(ctx context.Context, userID string) ([]*models.OAuthAccount, error) {
	if m.ListAccountsForUserFunc != nil {
		return m.ListAccountsForUserFunc(ctx, userID)
	}
	return []*models.OAuthAccount{}, nil
}

func (m *MockOAuthStore) CreateAccount(ctx context.Context, account *models.OAuthAccount) (*models.OAuthAccount, error) {
	if m.CreateAccountFunc != nil {
		return m.CreateAccountFunc(ctx, account)
	}
	account.ID = "oauth_account_123"
	return account, nil
}

func (m *MockOAuthStore) UpdateTokens(ctx context.Context, account *models.OAuthAccount) error {
	if m.UpdateTokensFunc != nil {
		return m.UpdateTokensFunc(ctx, account)
	}
	return nil
}

func (m *MockOAuthStore) CreateState(ctx context.Context, state *models.OAuthState) error {
	if m.CreateStateFunc != nil {
		return m.CreateStateFunc(ctx, state)
	}
	return nil
}

func (m *MockOAuthStore) ConsumeState(ctx context.Context, state string) (*models.OAuthState, error) {
	if m.ConsumeStateFunc != nil {
		return m.ConsumeStateFunc(ctx, state)
	}
	return nil, models.ErrNotFound
}

// MockRBACStore implements RBACStore for testing
type MockRBACStore struct {
	CreateRoleFunc         func(ctx context.Context, role *models.Role) (*models.Role, error)
	GetRoleFunc            func(ctx context.Context, id string) (*models.Role, error)
	GetRoleByNameFunc      func(ctx context.Context, name string) (*models.Role, error)
	ListRolesFunc          func(ctx context.Context) ([]*models.Role, error)
	DeleteRoleFunc         func(ctx context.Context, id string) error
	EnsurePermissionFunc   func(ctx context.Context, resource, action, description string) (*models.Permission, error)
	ListPermissionsFunc    func(ctx context.Context) ([]*models.Permission, error)
	GrantPermissionFunc    func(ctx context.Context, roleID, permissionID string) error
	RevokePermissionFunc   func(ctx context.Context, roleID, permissionID string) error
	AssignRoleFunc         func(ctx context.Context, userID, roleID string) error
	RemoveRoleFunc         func(ctx context.Context, userID, roleID string) error
	RolesForUserFunc       func(ctx context.Context, userID string) ([]*models.Role, error)
	PermissionsForUserFunc func(ctx context.Context, userID string) ([]models.Permission, error)
}

func (m *MockRBACStore) CreateRole(ctx context.Context, role *models.Role) (*models.Role, error) {
	if m.CreateRoleFunc != nil {
		return m.CreateRoleFunc(ctx, role)
	}
	role.ID = "role_123"
	return role, nil
}

func (m *MockRBACStore) GetRole(ctx context.Context, id string) (*models.Role, error) {
	if m.GetRoleFunc != nil {
		return m.GetRoleFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockRBACStore) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	if m.GetRoleByNameFunc != nil {
		return m.GetRoleByNameFunc(ctx, name)
	}
	return nil, models.ErrNotFound
}

func (m *MockRBACStore) ListRoles(ctx context.Context) ([]*models.Role, error) {
	if m.ListRolesFunc != nil {
		return m.ListRolesFunc(ctx)
	}
	return []*models.Role{}, nil
}

func (m *MockRBACStore) DeleteRole(ctx context.Context, id string) error {
	if m.DeleteRoleFunc != nil {
		return m.DeleteRoleFunc(ctx, id)
	}
	return nil
}

func (m *MockRBACStore) EnsurePermission(ctx context.Context, resource, action, description string) (*models.Permission, error) {
	if m.EnsurePermissionFunc != nil {
		return m.EnsurePermissionFunc(ctx, resource, action, description)
	}
	return &models.Permission{ID: "perm_123", Resource: resource, Action: action}, nil
}

func (m *MockRBACStore) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	if m.ListPermissionsFunc != nil {
		return m.ListPermissionsFunc(ctx)
	}
	return []*models.Permission{}, nil
}

func (m *MockRBACStore) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	if m.GrantPermissionFunc != nil {
		return m.GrantPermissionFunc(ctx, roleID, permissionID)
	}
	return nil
}

func (m *MockRBACStore) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	if m.RevokePermissionFunc != nil {
		return m.RevokePermissionFunc(ctx, roleID, permissionID)
	}
	return nil
}

func (m *MockRBACStore) AssignRole(ctx context.Context, userID, roleID string) error {
	if m.AssignRoleFunc != nil {
		return m.AssignRoleFunc(ctx, userID, roleID)
	}
	return nil
}

func (m *MockRBACStore) RemoveRole(ctx context.Context, userID, roleID string) error {
	if m.RemoveRoleFunc != nil {
		return m.RemoveRoleFunc(ctx, userID, roleID)
	}
	return nil
}

func (m *MockRBACStore) RolesForUser(ctx context.Context, userID string) ([]*models.Role, error) {
	if m.RolesForUserFunc != nil {
		return m.RolesForUserFunc(ctx, userID)
	}
	return []*models.Role{}, nil
}

func (m *MockRBACStore) PermissionsForUser(ctx context.Context, userID string) ([]models.Permission, error) {
	if m.PermissionsForUserFunc != nil {
		return m.PermissionsForUserFunc(ctx, userID)
	}
	return []models.Permission{}, nil
}

// MockPasswordResetStore implements PasswordResetStore for testing
type MockPasswordResetStore struct {
	CreateFunc func(ctx context.Context, token *models.PasswordResetToken) error
	RedeemFunc func(ctx context.Context, tokenHash string) (string, error)
}

func (m *MockPasswordResetStore) Create(ctx context.Context, token *models.PasswordResetToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	return nil
}

func (m *MockPasswordResetStore) Redeem(ctx context.Context, tokenHash string) (string, error) {
	if m.RedeemFunc != nil {
		return m.RedeemFunc(ctx, tokenHash)
	}
	return "", models.ErrNotFound
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendPasswordResetEmailFunc func(ctx context.Context, email, token string, expiresAt time.Time) error
	SentTo                     []string
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, token, expiresAt)
	}
	m.SentTo = append(m.SentTo, email)
	return nil
}
