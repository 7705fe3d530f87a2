package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/BradenHooton/loginpopup/internal/database"
	"github.com/BradenHooton/loginpopup/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, username, email, password_hash, display_name, status, locked_until, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner interface for scanning user rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var lockedUntil *time.Time

	err := scanner.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.DisplayName,
		&user.Status, &lockedUntil, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	user.LockedUntil = lockedUntil
	return &user, nil
}

// GetByLogin finds a user by username or email, case-insensitively
func (r *UserRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)
		ORDER BY (LOWER(username) = LOWER($1)) DESC
		LIMIT 1`
	return scanUserRow(r.pool.QueryRow(ctx, query, strings.TrimSpace(login)))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// Create inserts user and fills in the generated id and timestamps
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.Status == "" {
		user.Status = models.UserStatusActive
	}

	query := `
		INSERT INTO users (username, email, password_hash, display_name, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.DisplayName, user.Status,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return database.MapPostgresError(err)
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
