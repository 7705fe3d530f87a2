package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/loginpopup/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError translates driver errors into model sentinels.
// Connection-level failures are wrapped with models.ErrStoreUnavailable.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrConflict
		case "23503", "23502": // foreign_key_violation, not_null_violation
			return models.ErrBadRequest
		case "57P01", "57P02", "57P03", "53300": // admin_shutdown, crash_shutdown, cannot_connect_now, too_many_connections
			return fmt.Errorf("%w: %s", models.ErrStoreUnavailable, pgErr.Message)
		}
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" { // connection_exception class
			return fmt.Errorf("%w: %s", models.ErrStoreUnavailable, pgErr.Message)
		}
		return err
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	return err
}
