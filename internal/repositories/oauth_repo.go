package repositories

import (
	"context"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/database"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OAuthRepository struct {
	pool *pgxpool.Pool
}

func NewOAuthRepository(db *database.DB) *OAuthRepository {
	return &OAuthRepository{pool: db.Pool}
}

const oauthAccountColumns = `id, user_id, provider, provider_user_id, provider_email,
	access_token_enc, access_token_nonce, refresh_token_enc, refresh_token_nonce,
	created_at, updated_at`

func scanOAuthAccountRow(scanner rowScanner) (*models.OAuthAccount, error) {
	var account models.OAuthAccount

	err := scanner.Scan(
		&account.ID, &account.UserID, &account.Provider, &account.ProviderUserID,
		&account.ProviderEmail,
		&account.AccessTokenEnc, &account.AccessTokenNonce,
		&account.RefreshTokenEnc, &account.RefreshTokenNonce,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &account, nil
}

func (r *OAuthRepository) GetAccount(ctx context.Context, provider, providerUserID string) (*models.OAuthAccount, error) {
	query := `SELECT ` + oauthAccountColumns + ` FROM oauth_accounts WHERE provider = $1 AND provider_user_id = $2`
	return scanOAuthAccountRow(r.pool.QueryRow(ctx, query, provider, providerUserID))
}

func (r *OAuthRepository) ListAccountsForUser(ctx context.Context, userID string) ([]*models.OAuthAccount, error) {
	query := `SELECT ` + oauthAccountColumns + ` FROM oauth_accounts WHERE user_id = $1 ORDER BY provider`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var accounts []*models.OAuthAccount
	for rows.Next() {
		account, err := scanOAuthAccountRow(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *OAuthRepository) CreateAccount(ctx context.Context, account *models.OAuthAccount) (*models.OAuthAccount, error) {
	account.ID = uuid.New().String()
	now := time.Now()

	query := `
		INSERT INTO oauth_accounts (id, user_id, provider, provider_user_id, provider_email,
			access_token_enc, access_token_nonce, refresh_token_enc, refresh_token_nonce,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING ` + oauthAccountColumns

	return scanOAuthAccountRow(r.pool.QueryRow(ctx, query,
		account.ID, account.UserID, account.Provider, account.ProviderUserID, account.ProviderEmail,
		account.AccessTokenEnc, account.AccessTokenNonce,
		account.RefreshTokenEnc, account.RefreshTokenNonce,
		now,
	))
}

// UpdateTokens refreshes the stored provider tokens on re-login.
func (r *OAuthRepository) UpdateTokens(ctx context.Context, account *models.OAuthAccount) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE oauth_accounts
		SET access_token_enc = $2, access_token_nonce = $3,
			refresh_token_enc = $4, refresh_token_nonce = $5,
			provider_email = $6, updated_at = now()
		WHERE id = $1
	`,
		account.ID,
		account.AccessTokenEnc, account.AccessTokenNonce,
		account.RefreshTokenEnc, account.RefreshTokenNonce,
		account.ProviderEmail,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *OAuthRepository) CreateState(ctx context.Context, state *models.OAuthState) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO oauth_states (state, provider, expires_at, created_at)
		VALUES ($1, $2, $3, now())
	`, state.State, state.Provider, state.ExpiresAt)
	return database.MapPostgresError(err)
}

// ConsumeState atomically checks and deletes a state nonce. Only the first
// caller gets the row; replays and expired states surface as not found.
func (r *OAuthRepository) ConsumeState(ctx context.Context, state string) (*models.OAuthState, error) {
	query := `
		DELETE FROM oauth_states
		WHERE state = $1 AND expires_at > now()
		RETURNING state, provider, expires_at, created_at
	`

	var st models.OAuthState
	err := r.pool.QueryRow(ctx, query, state).Scan(&st.State, &st.Provider, &st.ExpiresAt, &st.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &st, nil
}

func (r *OAuthRepository) DeleteExpiredStates(ctx context.Context) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM oauth_states WHERE expires_at < now()`)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return cmd.RowsAffected(), nil
}
