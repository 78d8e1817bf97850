package repositories

import (
	"context"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/database"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LockoutRepository struct {
	pool *pgxpool.Pool
}

func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{pool: db.Pool}
}

const lockoutColumns = `id, account_key, ip_address, failed_attempts, lockout_cycles,
	locked_at, unlock_at, is_active, created_at, updated_at`

func scanLockoutRow(scanner rowScanner) (*models.AccountLockout, error) {
	var lockout models.AccountLockout

	err := scanner.Scan(
		&lockout.ID, &lockout.AccountKey, &lockout.IPAddress,
		&lockout.FailedAttempts, &lockout.LockoutCycles,
		&lockout.LockedAt, &lockout.UnlockAt, &lockout.IsActive,
		&lockout.CreatedAt, &lockout.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &lockout, nil
}

func (r *LockoutRepository) GetByKey(ctx context.Context, accountKey string) (*models.AccountLockout, error) {
	query := `SELECT ` + lockoutColumns + ` FROM account_lockouts WHERE account_key = $1`
	return scanLockoutRow(r.pool.QueryRow(ctx, query, accountKey))
}

func (r *LockoutRepository) GetByID(ctx context.Context, id string) (*models.AccountLockout, error) {
	query := `SELECT ` + lockoutColumns + ` FROM account_lockouts WHERE id = $1`
	return scanLockoutRow(r.pool.QueryRow(ctx, query, id))
}

// RecordFailure bumps the failure counter for an account key in a single
// upsert, so concurrent failed attempts never lose increments. Counters that
// went stale (no failure inside the window) restart at 1.
func (r *LockoutRepository) RecordFailure(ctx context.Context, accountKey string, ip *string, window time.Duration) (*models.AccountLockout, error) {
	query := `
		INSERT INTO account_lockouts (id, account_key, ip_address, failed_attempts, lockout_cycles, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, 1, 0, false, now(), now())
		ON CONFLICT (account_key) DO UPDATE SET
			failed_attempts = CASE
				WHEN account_lockouts.is_active = false AND account_lockouts.updated_at < now() - $4::interval THEN 1
				ELSE account_lockouts.failed_attempts + 1
			END,
			ip_address = EXCLUDED.ip_address,
			updated_at = now()
		RETURNING ` + lockoutColumns

	return scanLockoutRow(r.pool.QueryRow(ctx, query, uuid.New().String(), accountKey, ip, window))
}

// Activate flips the record into a locked state and bumps the cycle counter
// that drives backoff escalation.
func (r *LockoutRepository) Activate(ctx context.Context, id string, unlockAt time.Time) (*models.AccountLockout, error) {
	query := `
		UPDATE account_lockouts
		SET is_active = true, lockout_cycles = lockout_cycles + 1,
			locked_at = now(), unlock_at = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + lockoutColumns

	return scanLockoutRow(r.pool.QueryRow(ctx, query, id, unlockAt))
}

// Clear resets the failure counter after a fully successful authentication.
// Lockout cycles survive the clear so repeat offenders keep escalating.
func (r *LockoutRepository) Clear(ctx context.Context, accountKey string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE account_lockouts
		SET failed_attempts = 0, is_active = false, unlock_at = NULL, updated_at = now()
		WHERE account_key = $1
	`, accountKey)
	return database.MapPostgresError(err)
}

// Unlock deactivates a lockout by id, for administrative unlocks.
func (r *LockoutRepository) Unlock(ctx context.Context, id string) (*models.AccountLockout, error) {
	query := `
		UPDATE account_lockouts
		SET is_active = false, failed_attempts = 0, unlock_at = NULL, updated_at = now()
		WHERE id = $1
		RETURNING ` + lockoutColumns

	return scanLockoutRow(r.pool.QueryRow(ctx, query, id))
}

func (r *LockoutRepository) ListActive(ctx context.Context, limit int) ([]*models.AccountLockout, error) {
	query := `
		SELECT ` + lockoutColumns + `
		FROM account_lockouts
		WHERE is_active = true
		ORDER BY locked_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var lockouts []*models.AccountLockout
	for rows.Next() {
		lockout, err := scanLockoutRow(rows)
		if err != nil {
			return nil, err
		}
		lockouts = append(lockouts, lockout)
	}
	return lockouts, rows.Err()
}

// DeactivateExpired releases lockouts whose unlock time has passed.
func (r *LockoutRepository) DeactivateExpired(ctx context.Context) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE account_lockouts
		SET is_active = false, updated_at = now()
		WHERE is_active = true AND unlock_at IS NOT NULL AND unlock_at < now()
	`)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return cmd.RowsAffected(), nil
}
