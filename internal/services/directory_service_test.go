package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/loginpopup/internal/models"
	pkgauth "github.com/BradenHooton/loginpopup/pkg/auth"
)

func newDirectoryFixture(t *testing.T, cost int) (*DirectoryService, *models.User, *MockUserRepository) {
	t.Helper()
	hasher, err := pkgauth.NewHasher(cost)
	require.NoError(t, err)

	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)

	user := NewTestUser("user-1", "alice", "alice@example.test")
	user.PasswordHash = hash

	repo := &MockUserRepository{
		GetByLoginFunc: func(_ context.Context, login string) (*models.User, error) {
			if login == "alice" || login == "alice@example.test" {
				cp := *user
				return &cp, nil
			}
			return nil, models.ErrNotFound
		},
	}
	return NewDirectoryService(repo, hasher, nil, discardLogger()), user, repo
}

func dirCode(t *testing.T, err error) string {
	t.Helper()
	var dirErr *models.DirectoryError
	require.True(t, errors.As(err, &dirErr), "expected DirectoryError, got %v", err)
	return dirErr.Code
}

func TestDirectoryService_Verify_Success(t *testing.T) {
	svc, _, _ := newDirectoryFixture(t, 4)

	for _, login := range []string{"alice", "alice@example.test"} {
		user, err := svc.Verify(context.Background(), models.Credentials{Login: login, Password: "correct horse"})
		require.NoError(t, err)
		assert.Equal(t, "user-1", user.ID)
	}
}

func TestDirectoryService_Verify_Failures(t *testing.T) {
	svc, user, _ := newDirectoryFixture(t, 4)

	tests := []struct {
		name  string
		creds models.Credentials
		setup func()
		code  string
	}{
		{"empty username", models.Credentials{Password: "x"}, nil, models.DirCodeEmptyUsername},
		{"empty password", models.Credentials{Login: "alice"}, nil, models.DirCodeEmptyPassword},
		{"unknown username", models.Credentials{Login: "bob", Password: "x"}, nil, models.DirCodeInvalidUsername},
		{"unknown email", models.Credentials{Login: "bob@example.test", Password: "x"}, nil, models.DirCodeInvalidEmail},
		{"wrong password", models.Credentials{Login: "alice", Password: "wrong"}, nil, models.DirCodeIncorrectPassword},
		{"disabled", models.Credentials{Login: "alice", Password: "correct horse"}, func() {
			user.Status = models.UserStatusDisabled
		}, models.DirCodeAccountDisabled},
		{"locked", models.Credentials{Login: "alice", Password: "correct horse"}, func() {
			user.Status = models.UserStatusActive
			until := time.Now().Add(time.Hour)
			user.LockedUntil = &until
		}, models.DirCodeAccountLocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			got, err := svc.Verify(context.Background(), tt.creds)
			assert.Nil(t, got)
			assert.Equal(t, tt.code, dirCode(t, err))
		})
	}
}

func TestDirectoryService_Verify_DisabledOmitsLogin(t *testing.T) {
	svc, user, _ := newDirectoryFixture(t, 4)
	user.Status = models.UserStatusDisabled

	_, err := svc.Verify(context.Background(), models.Credentials{Login: "alice@example.test", Password: "correct horse"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrAccountDisabled))
	assert.NotContains(t, err.Error(), "alice")
}

func TestDirectoryService_Verify_EscapesLogin(t *testing.T) {
	svc, _, _ := newDirectoryFixture(t, 4)

	_, err := svc.Verify(context.Background(), models.Credentials{Login: "<b>x</b>", Password: "x"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "<b>")
	assert.Contains(t, err.Error(), "&lt;b&gt;")
}

func TestDirectoryService_Verify_LookupError(t *testing.T) {
	svc, _, repo := newDirectoryFixture(t, 4)
	repo.GetByLoginFunc = func(context.Context, string) (*models.User, error) {
		return nil, models.ErrStoreUnavailable
	}

	_, err := svc.Verify(context.Background(), models.Credentials{Login: "alice", Password: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	var dirErr *models.DirectoryError
	assert.False(t, errors.As(err, &dirErr))
}

func TestDirectoryService_Verify_RehashesOnCostChange(t *testing.T) {
	svc, _, repo := newDirectoryFixture(t, 4)

	stronger, err := pkgauth.NewHasher(5)
	require.NoError(t, err)
	svc.hasher = stronger

	var updated string
	repo.UpdatePasswordHashFunc = func(_ context.Context, id, hash string) error {
		updated = hash
		return nil
	}

	_, err = svc.Verify(context.Background(), models.Credentials{Login: "alice", Password: "correct horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, updated)
	assert.NoError(t, stronger.Compare(updated, "correct horse"))
}
