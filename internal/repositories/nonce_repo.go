package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/loginpopup/internal/database"
	"github.com/BradenHooton/loginpopup/internal/models"
)

// NonceRepository stores hashed popup nonces in PostgreSQL
type NonceRepository struct {
	db *database.DB
}

func NewNonceRepository(db *database.DB) *NonceRepository {
	return &NonceRepository{db: db}
}

func (r *NonceRepository) Save(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO popup_nonces (token_hash, expires_at) VALUES ($1, $2)`,
		tokenHash, expiresAt)
	return database.MapPostgresError(err)
}

// Consume deletes the nonce and reports whether it existed and was still valid.
// The delete happens in one statement so two concurrent consumers cannot both succeed.
func (r *NonceRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	var expiresAt time.Time
	err := r.db.Pool.QueryRow(ctx,
		`DELETE FROM popup_nonces WHERE token_hash = $1 RETURNING expires_at`,
		tokenHash).Scan(&expiresAt)
	if err != nil {
		err = database.MapPostgresError(err)
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	return now.Before(expiresAt), nil
}

func (r *NonceRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM popup_nonces WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
