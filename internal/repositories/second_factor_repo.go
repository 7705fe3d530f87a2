package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/loginpopup/internal/database"
	"github.com/BradenHooton/loginpopup/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SecondFactorRepository stores TOTP enrollments and the login nonces that
// bridge a password-verified login to the code prompt.
type SecondFactorRepository struct {
	pool *pgxpool.Pool
}

func NewSecondFactorRepository(db *database.DB) *SecondFactorRepository {
	return &SecondFactorRepository{pool: db.Pool}
}

func (r *SecondFactorRepository) Get(ctx context.Context, userID string) (*models.SecondFactor, error) {
	query := `
		SELECT user_id, secret_encrypted, secret_nonce, enabled, last_used_at, created_at
		FROM second_factors WHERE user_id = $1
	`

	var sf models.SecondFactor
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&sf.UserID, &sf.SecretEncrypted, &sf.SecretNonce, &sf.Enabled, &sf.LastUsedAt, &sf.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &sf, nil
}

// Save enrolls or replaces the user's TOTP secret
func (r *SecondFactorRepository) Save(ctx context.Context, sf *models.SecondFactor) error {
	query := `
		INSERT INTO second_factors (user_id, secret_encrypted, secret_nonce, enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			secret_encrypted = EXCLUDED.secret_encrypted,
			secret_nonce = EXCLUDED.secret_nonce,
			enabled = EXCLUDED.enabled,
			last_used_at = NULL
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query, sf.UserID, sf.SecretEncrypted, sf.SecretNonce, sf.Enabled).Scan(&sf.CreatedAt)
	return database.MapPostgresError(err)
}

// MarkUsed records the time step of an accepted code. It fails with
// models.ErrConflict when the same or a later step was already used.
func (r *SecondFactorRepository) MarkUsed(ctx context.Context, userID string, usedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE second_factors SET last_used_at = $2
		WHERE user_id = $1 AND (last_used_at IS NULL OR last_used_at < $2)
	`, userID, usedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	return nil
}

func (r *SecondFactorRepository) SaveLoginNonce(ctx context.Context, n *models.LoginNonce) error {
	query := `
		INSERT INTO login_nonces (token_hash, user_id, redirect_to, remember, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query, n.TokenHash, n.UserID, n.RedirectTo, n.Remember, n.ExpiresAt).Scan(&n.CreatedAt)
	return database.MapPostgresError(err)
}

// ConsumeLoginNonce deletes and returns the nonce. Expired or unknown nonces
// yield models.ErrNotFound.
func (r *SecondFactorRepository) ConsumeLoginNonce(ctx context.Context, tokenHash string, now time.Time) (*models.LoginNonce, error) {
	query := `
		DELETE FROM login_nonces WHERE token_hash = $1
		RETURNING token_hash, user_id, redirect_to, remember, expires_at, created_at
	`

	var n models.LoginNonce
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&n.TokenHash, &n.UserID, &n.RedirectTo, &n.Remember, &n.ExpiresAt, &n.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if !now.Before(n.ExpiresAt) {
		return nil, models.ErrNotFound
	}
	return &n, nil
}

func (r *SecondFactorRepository) PurgeExpiredLoginNonces(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM login_nonces WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
