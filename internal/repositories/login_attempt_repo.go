package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/loginpopup/internal/database"
	"github.com/BradenHooton/loginpopup/internal/models"
)

// LoginAttemptRepository stores fixed-window failure counters in PostgreSQL
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Get returns the live record for key, or nil when none exists or its window has closed
func (r *LoginAttemptRepository) Get(ctx context.Context, key string, now time.Time) (*models.AttemptRecord, error) {
	query := `
		SELECT key, count, window_expires_at FROM login_attempts
		WHERE key = $1 AND window_expires_at > $2
	`

	var rec models.AttemptRecord
	err := r.db.Pool.QueryRow(ctx, query, key, now).Scan(&rec.Key, &rec.Count, &rec.WindowExpiresAt)
	if err != nil {
		err = database.MapPostgresError(err)
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &rec, nil
}

// Increment atomically adds one failure. A missing or expired record starts a
// new window at now; a live record keeps its original expiry.
func (r *LoginAttemptRepository) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (models.AttemptRecord, error) {
	query := `
		INSERT INTO login_attempts (key, count, window_expires_at)
		VALUES ($1, 1, $3)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN login_attempts.window_expires_at <= $2
				THEN 1 ELSE login_attempts.count + 1 END,
			window_expires_at = CASE WHEN login_attempts.window_expires_at <= $2
				THEN EXCLUDED.window_expires_at ELSE login_attempts.window_expires_at END
		RETURNING key, count, window_expires_at
	`

	var rec models.AttemptRecord
	err := r.db.Pool.QueryRow(ctx, query, key, now, now.Add(window)).
		Scan(&rec.Key, &rec.Count, &rec.WindowExpiresAt)
	if err != nil {
		return models.AttemptRecord{}, database.MapPostgresError(err)
	}

	return rec, nil
}

// Delete removes the record for key
func (r *LoginAttemptRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE key = $1`, key)
	return database.MapPostgresError(err)
}

// PurgeExpired deletes records whose window closed before now
func (r *LoginAttemptRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE window_expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
