package repositories

import (
	"context"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/database"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

const sessionColumns = `id, user_id, refresh_token_hash, previous_token_hash, ip_address, user_agent,
	is_active, expires_at, last_activity_at, revoked_at, revoked_reason, created_at`

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var session models.Session

	err := scanner.Scan(
		&session.ID, &session.UserID, &session.RefreshTokenHash, &session.PreviousTokenHash,
		&session.IPAddress, &session.UserAgent,
		&session.IsActive, &session.ExpiresAt, &session.LastActivityAt,
		&session.RevokedAt, &session.RevokedReason, &session.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &session, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	session.ID = uuid.New().String()
	now := time.Now()
	session.CreatedAt = now
	session.LastActivityAt = now
	session.IsActive = true

	query := `
		INSERT INTO sessions (id, user_id, refresh_token_hash, ip_address, user_agent, is_active, expires_at, last_activity_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + sessionColumns

	return scanSessionRow(r.pool.QueryRow(ctx, query,
		session.ID, session.UserID, session.RefreshTokenHash,
		session.IPAddress, session.UserAgent, session.IsActive,
		session.ExpiresAt, session.LastActivityAt, session.CreatedAt,
	))
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSessionRow(r.pool.QueryRow(ctx, query, id))
}

func (r *SessionRepository) GetByRefreshTokenHash(ctx context.Context, hash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_token_hash = $1`
	return scanSessionRow(r.pool.QueryRow(ctx, query, hash))
}

// GetByPreviousTokenHash finds the session a superseded refresh token belonged
// to. A hit here is the replay signal for rotated tokens.
func (r *SessionRepository) GetByPreviousTokenHash(ctx context.Context, hash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE previous_token_hash = $1`
	return scanSessionRow(r.pool.QueryRow(ctx, query, hash))
}

func (r *SessionRepository) ListActiveForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND is_active = true AND expires_at > now()
		ORDER BY last_activity_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Rotate swaps in a new refresh token hash, keeping the old one for replay
// detection. The WHERE clause on the current hash makes rotation a
// compare-and-swap: a concurrent rotation that already won leaves zero rows.
func (r *SessionRepository) Rotate(ctx context.Context, sessionID, currentHash, newHash string) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET refresh_token_hash = $3, previous_token_hash = $2, last_activity_at = now()
		WHERE id = $1 AND refresh_token_hash = $2 AND is_active = true
		RETURNING ` + sessionColumns

	return scanSessionRow(r.pool.QueryRow(ctx, query, sessionID, currentHash, newHash))
}

func (r *SessionRepository) Touch(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET last_activity_at = now() WHERE id = $1 AND is_active = true`,
		id,
	)
	return database.MapPostgresError(err)
}

// Revoke is idempotent: revoking an already revoked session reports success
// without touching the original revocation record.
func (r *SessionRepository) Revoke(ctx context.Context, id, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET is_active = false, revoked_at = now(), revoked_reason = $2
		WHERE id = $1 AND is_active = true
	`, id, reason)
	return database.MapPostgresError(err)
}

// RevokeAllForUser revokes every active session and returns how many were hit.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET is_active = false, revoked_at = now(), revoked_reason = $2
		WHERE user_id = $1 AND is_active = true
	`, userID, reason)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return cmd.RowsAffected(), nil
}

// ExpireIdle deactivates sessions whose last activity is older than the idle
// window, and DeleteExpired removes rows long past their absolute expiry.
func (r *SessionRepository) ExpireIdle(ctx context.Context, idleBefore time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET is_active = false, revoked_at = now(), revoked_reason = $2
		WHERE is_active = true AND last_activity_at < $1
	`, idleBefore, models.RevokeReasonExpired)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return cmd.RowsAffected(), nil
}
