package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/McGuireTechnology/truledgr-auth/internal/database"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/McGuireTechnology/truledgr-auth/internal/repositories"
	"github.com/McGuireTechnology/truledgr-auth/migrations"
	pkgauth "github.com/McGuireTechnology/truledgr-auth/pkg/auth"
)

// TestDB manages a PostgreSQL testcontainer and the application pool on top of it
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase starts a PostgreSQL container, runs migrations and returns
// a ready-to-use TestDB.
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("truledgr_auth"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Same embedded migrations as the server binary, through the stdlib adapter
	sqlDB := stdlib.OpenDBFromPool(pool)
	if err := migrations.Migrate(sqlDB); err != nil {
		sqlDB.Close()
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	sqlDB.Close()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         database.NewFromPool(pool, logger),
	}, nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"security_events",
		"mfa_challenges",
		"mfa_backup_codes",
		"mfa_credentials",
		"password_reset_tokens",
		"oauth_states",
		"oauth_accounts",
		"user_roles",
		"role_permissions",
		"permissions",
		"roles",
		"account_lockouts",
		"sessions",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from the database wrapper
func InitializeRepositories(db *database.DB) (
	*repositories.UserRepository,
	*repositories.SessionRepository,
	*repositories.LockoutRepository,
	*repositories.RBACRepository,
	*repositories.OAuthRepository,
	*repositories.MFARepository,
	*repositories.PasswordResetRepository,
	*repositories.SecurityEventRepository,
) {
	return repositories.NewUserRepository(db),
		repositories.NewSessionRepository(db),
		repositories.NewLockoutRepository(db),
		repositories.NewRBACRepository(db),
		repositories.NewOAuthRepository(db),
		repositories.NewMFARepository(db),
		repositories.NewPasswordResetRepository(db),
		repositories.NewSecurityEventRepository(db)
}

// SeedUser inserts a test user with a hashed password
func SeedUser(ctx context.Context, pool *pgxpool.Pool, username, email, password string, active bool) (*models.User, error) {
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, is_active, is_verified)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING id, username, email, password_hash, is_active, is_verified, is_locked, created_at, updated_at
	`

	var user models.User
	err = pool.QueryRow(ctx, query, uuid.NewString(), username, email, hash, active).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsVerified,
		&user.IsLocked,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return &user, nil
}

func sha256Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// SeedPasswordResetToken creates a reset token for the user and returns the raw token
func SeedPasswordResetToken(ctx context.Context, pool *pgxpool.Pool, userID string) (string, error) {
	token := "test-reset-token-" + userID
	tokenHash := sha256Hash(token)

	query := `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, now() + INTERVAL '1 hour')
	`
	if _, err := pool.Exec(ctx, query, uuid.NewString(), userID, tokenHash); err != nil {
		return "", fmt.Errorf("failed to insert reset token: %w", err)
	}

	return token, nil
}

// SeedExpiredSession inserts a session whose refresh token has already expired
func SeedExpiredSession(ctx context.Context, pool *pgxpool.Pool, userID string) (string, error) {
	sessionID := uuid.NewString()
	query := `
		INSERT INTO sessions (id, user_id, refresh_token_hash, expires_at, last_activity_at)
		VALUES ($1, $2, $3, now() - INTERVAL '1 hour', now() - INTERVAL '2 hours')
	`
	if _, err := pool.Exec(ctx, query, sessionID, userID, sha256Hash("expired-"+sessionID)); err != nil {
		return "", fmt.Errorf("failed to insert expired session: %w", err)
	}
	return sessionID, nil
}

// SeedRoleWithPermission creates a role carrying a single permission and
// assigns it to the user.
func SeedRoleWithPermission(ctx context.Context, pool *pgxpool.Pool, userID, roleName, resource, action string) (string, error) {
	roleID := uuid.NewString()
	permID := uuid.NewString()

	if _, err := pool.Exec(ctx,
		`INSERT INTO roles (id, name, description, is_active) VALUES ($1, $2, '', true)`,
		roleID, roleName,
	); err != nil {
		return "", fmt.Errorf("failed to insert role: %w", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO permissions (id, resource, action, description) VALUES ($1, $2, $3, '')`,
		permID, resource, action,
	); err != nil {
		return "", fmt.Errorf("failed to insert permission: %w", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
		roleID, permID,
	); err != nil {
		return "", fmt.Errorf("failed to grant permission: %w", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`,
		userID, roleID,
	); err != nil {
		return "", fmt.Errorf("failed to assign role: %w", err)
	}

	return roleID, nil
}
