package repositories

import (
	"context"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/database"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PasswordResetRepository struct {
	pool *pgxpool.Pool
}

func NewPasswordResetRepository(db *database.DB) *PasswordResetRepository {
	return &PasswordResetRepository{pool: db.Pool}
}

func (r *PasswordResetRepository) Create(ctx context.Context, token *models.PasswordResetToken) error {
	token.ID = uuid.New().String()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, token.ID, token.UserID, token.TokenHash, token.ExpiresAt)
	return database.MapPostgresError(err)
}

// Redeem marks an unused, unexpired token as used and returns its user id.
// The single UPDATE makes redemption first-wins under concurrency.
func (r *PasswordResetRepository) Redeem(ctx context.Context, tokenHash string) (string, error) {
	query := `
		UPDATE password_reset_tokens
		SET used_at = now()
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > now()
		RETURNING user_id
	`

	var userID string
	if err := r.pool.QueryRow(ctx, query, tokenHash).Scan(&userID); err != nil {
		return "", database.MapPostgresError(err)
	}
	return userID, nil
}

func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at < $1 OR used_at IS NOT NULL`,
		cutoff,
	)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return cmd.RowsAffected(), nil
}
