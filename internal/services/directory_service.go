package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/loginpopup/internal/auth"
	"github.com/BradenHooton/loginpopup/internal/models"
	pkgauth "github.com/BradenHooton/loginpopup/pkg/auth"
)

// UserRepository defines the user lookups the directory needs
type UserRepository interface {
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// DirectoryService verifies credentials against the user store. Its errors
// are *models.DirectoryError carrying a machine code and a detailed message;
// callers decide how much of that to show.
type DirectoryService struct {
	users   UserRepository
	hasher  *pkgauth.Hasher
	timing  *auth.TimingDelay
	logger  *slog.Logger
	nowFunc func() time.Time
}

func NewDirectoryService(users UserRepository, hasher *pkgauth.Hasher, timing *auth.TimingDelay, logger *slog.Logger) *DirectoryService {
	return &DirectoryService{
		users:   users,
		hasher:  hasher,
		timing:  timing,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Verify checks login and password and returns the matching user
func (d *DirectoryService) Verify(ctx context.Context, creds models.Credentials) (*models.User, error) {
	start := time.Now()

	user, err := d.verify(ctx, creds)
	d.timing.WaitFrom(ctx, start, err == nil)
	if err != nil {
		return nil, err
	}

	if d.hasher.NeedsRehash(user.PasswordHash) {
		d.rehash(ctx, user, creds.Password)
	}

	return user, nil
}

func (d *DirectoryService) verify(ctx context.Context, creds models.Credentials) (*models.User, error) {
	login := strings.TrimSpace(creds.Login)
	if login == "" {
		return nil, &models.DirectoryError{
			Code:    models.DirCodeEmptyUsername,
			Message: "<strong>Error:</strong> The username field is empty.",
		}
	}
	if creds.Password == "" {
		return nil, &models.DirectoryError{
			Code:    models.DirCodeEmptyPassword,
			Message: "<strong>Error:</strong> The password field is empty.",
		}
	}

	user, err := d.users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			d.hasher.CompareDummy(creds.Password)
			return nil, unknownLoginError(login)
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := d.hasher.Compare(user.PasswordHash, creds.Password); err != nil {
		if errors.Is(err, pkgauth.ErrMismatch) {
			return nil, &models.DirectoryError{
				Code: models.DirCodeIncorrectPassword,
				Message: fmt.Sprintf("<strong>Error:</strong> The password you entered for the username <strong>%s</strong> is incorrect.",
					html.EscapeString(login)),
				Err: models.ErrInvalidCredentials,
			}
		}
		return nil, fmt.Errorf("failed to compare password: %w", err)
	}

	if user.Status == models.UserStatusDisabled {
		return nil, &models.DirectoryError{
			Code:    models.DirCodeAccountDisabled,
			Message: "<strong>Error:</strong> This account has been disabled.",
			Err:     models.ErrAccountDisabled,
		}
	}
	if user.IsLocked(d.nowFunc()) {
		return nil, &models.DirectoryError{
			Code:    models.DirCodeAccountLocked,
			Message: "<strong>Error:</strong> This account is temporarily locked. Please try again later.",
			Err:     models.ErrAccountLocked,
		}
	}

	return user, nil
}

func unknownLoginError(login string) *models.DirectoryError {
	if strings.Contains(login, "@") {
		return &models.DirectoryError{
			Code:    models.DirCodeInvalidEmail,
			Message: fmt.Sprintf("<strong>Error:</strong> The email address <strong>%s</strong> is not registered on this site.", html.EscapeString(login)),
			Err:     models.ErrInvalidCredentials,
		}
	}
	return &models.DirectoryError{
		Code:    models.DirCodeInvalidUsername,
		Message: fmt.Sprintf("<strong>Error:</strong> The username <strong>%s</strong> is not registered on this site.", html.EscapeString(login)),
		Err:     models.ErrInvalidCredentials,
	}
}

func (d *DirectoryService) rehash(ctx context.Context, user *models.User, password string) {
	hash, err := d.hasher.Hash(password)
	if err != nil {
		d.logger.Warn("failed to rehash password", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	if err := d.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		d.logger.Warn("failed to store rehashed password", slog.String("user_id", user.ID), slog.Any("error", err))
	}
}

// GetUser returns the user with id
func (d *DirectoryService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return d.users.GetByID(ctx, id)
}
