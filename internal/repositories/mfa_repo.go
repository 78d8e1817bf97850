package repositories

import (
	"context"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/database"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MFARepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewMFARepository(db *database.DB) *MFARepository {
	return &MFARepository{db: db, pool: db.Pool}
}

const mfaCredentialColumns = `user_id, secret_enc, secret_nonce, enabled, last_used_step, created_at, updated_at`

func scanMFACredentialRow(scanner rowScanner) (*models.MFACredential, error) {
	var cred models.MFACredential

	err := scanner.Scan(
		&cred.UserID, &cred.SecretEnc, &cred.SecretNonce,
		&cred.Enabled, &cred.LastUsedStep,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &cred, nil
}

func (r *MFARepository) GetCredential(ctx context.Context, userID string) (*models.MFACredential, error) {
	query := `SELECT ` + mfaCredentialColumns + ` FROM mfa_credentials WHERE user_id = $1`
	return scanMFACredentialRow(r.pool.QueryRow(ctx, query, userID))
}

// UpsertCredential stores a fresh enrollment in the disabled state. Re-running
// setup before enabling replaces the pending secret.
func (r *MFARepository) UpsertCredential(ctx context.Context, cred *models.MFACredential) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO mfa_credentials (user_id, secret_enc, secret_nonce, enabled, last_used_step, created_at, updated_at)
		VALUES ($1, $2, $3, false, 0, now(), now())
		ON CONFLICT (user_id) DO UPDATE SET
			secret_enc = EXCLUDED.secret_enc,
			secret_nonce = EXCLUDED.secret_nonce,
			enabled = false,
			last_used_step = 0,
			updated_at = now()
	`, cred.UserID, cred.SecretEnc, cred.SecretNonce)
	return database.MapPostgresError(err)
}

func (r *MFARepository) EnableCredential(ctx context.Context, userID string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE mfa_credentials SET enabled = true, updated_at = now() WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrMfaNotEnrolled
	}
	return nil
}

// MarkStepUsed advances the replay guard. The WHERE clause only moves the
// step forward, so two concurrent validations of the same code cannot both
// win: the loser sees zero rows and reports the code as already used.
func (r *MFARepository) MarkStepUsed(ctx context.Context, userID string, step int64) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE mfa_credentials
		SET last_used_step = $2, updated_at = now()
		WHERE user_id = $1 AND last_used_step < $2
	`, userID, step)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return cmd.RowsAffected() > 0, nil
}

// DeleteCredential removes the enrollment and its backup codes together.
func (r *MFARepository) DeleteCredential(ctx context.Context, userID string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `DELETE FROM mfa_credentials WHERE user_id = $1`, userID)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if cmd.RowsAffected() == 0 {
			return models.ErrMfaNotEnrolled
		}

		_, err = tx.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = $1`, userID)
		return database.MapPostgresError(err)
	})
}

// ReplaceBackupCodes swaps the full backup code set atomically.
func (r *MFARepository) ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = $1`, userID); err != nil {
			return database.MapPostgresError(err)
		}

		for _, hash := range codeHashes {
			_, err := tx.Exec(ctx, `
				INSERT INTO mfa_backup_codes (id, user_id, code_hash)
				VALUES ($1, $2, $3)
			`, uuid.New().String(), userID, hash)
			if err != nil {
				return database.MapPostgresError(err)
			}
		}
		return nil
	})
}

// ConsumeBackupCode marks a matching unused code as used. Returns false when
// no unused code matched, which covers both wrong codes and replays.
func (r *MFARepository) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE mfa_backup_codes
		SET used_at = now()
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL
	`, userID, codeHash)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *MFARepository) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM mfa_backup_codes WHERE user_id = $1 AND used_at IS NULL`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

func (r *MFARepository) CreateChallenge(ctx context.Context, challenge *models.MFAChallenge) (*models.MFAChallenge, error) {
	challenge.ID = uuid.New().String()

	query := `
		INSERT INTO mfa_challenges (id, user_id, account_key, ip_address, user_agent, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, user_id, account_key, ip_address, user_agent, expires_at, consumed_at, created_at
	`

	var created models.MFAChallenge
	err := r.pool.QueryRow(ctx, query,
		challenge.ID, challenge.UserID, challenge.AccountKey, challenge.IPAddress, challenge.UserAgent, challenge.ExpiresAt,
	).Scan(
		&created.ID, &created.UserID, &created.AccountKey, &created.IPAddress, &created.UserAgent,
		&created.ExpiresAt, &created.ConsumedAt, &created.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &created, nil
}

func (r *MFARepository) GetChallenge(ctx context.Context, id string) (*models.MFAChallenge, error) {
	query := `
		SELECT id, user_id, account_key, ip_address, user_agent, expires_at, consumed_at, created_at
		FROM mfa_challenges WHERE id = $1
	`

	var challenge models.MFAChallenge
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&challenge.ID, &challenge.UserID, &challenge.AccountKey, &challenge.IPAddress, &challenge.UserAgent,
		&challenge.ExpiresAt, &challenge.ConsumedAt, &challenge.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &challenge, nil
}

// ConsumeChallenge marks a pending challenge as completed. Only one caller
// can consume a given challenge.
func (r *MFARepository) ConsumeChallenge(ctx context.Context, id string) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE mfa_challenges
		SET consumed_at = now()
		WHERE id = $1 AND consumed_at IS NULL AND expires_at > now()
	`, id)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *MFARepository) DeleteExpiredChallenges(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx,
		`DELETE FROM mfa_challenges WHERE expires_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return cmd.RowsAffected(), nil
}
