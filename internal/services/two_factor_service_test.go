package services

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/loginpopup/internal/auth"
	"github.com/BradenHooton/loginpopup/internal/models"
)

type twoFactorFixture struct {
	svc    *TwoFactorService
	repo   *MockSecondFactorRepository
	store  *MockAttemptStore
	secret string
	now    time.Time
}

func newTwoFactorFixture(t *testing.T) *twoFactorFixture {
	t.Helper()
	logger := discardLogger()

	manager, err := auth.NewTOTPManager([]byte(strings.Repeat("k", 32)), "Example")
	require.NoError(t, err)

	repo := NewMockSecondFactorRepository()
	store := NewMockAttemptStore()
	limiter := NewRateLimitService(store, RateLimitConfig{Enabled: true, MaxAttempts: 3, Window: time.Minute}, nil, logger)

	svc := NewTwoFactorService(repo, manager, limiter, TwoFactorConfig{
		ValidateURL: "http://example.test/2fa/validate",
		TokenTTL:    5 * time.Minute,
	}, logger)

	now := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	svc.nowFunc = func() time.Time { return now }

	enrollment, err := svc.Enroll(context.Background(), "user-1", "alice", 128)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.QRCodePNG)

	return &twoFactorFixture{svc: svc, repo: repo, store: store, secret: enrollment.Secret, now: now}
}

func (f *twoFactorFixture) code(t *testing.T, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(f.secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func (f *twoFactorFixture) issue(t *testing.T) string {
	t.Helper()
	token, err := f.svc.IssueSecondFactorChallenge(context.Background(), "user-1", "http://example.test/dashboard", true)
	require.NoError(t, err)
	return token
}

func TestTwoFactorService_IsSecondFactorEnabled(t *testing.T) {
	f := newTwoFactorFixture(t)

	enabled, err := f.svc.IsSecondFactorEnabled(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, enabled)

	enabled, err = f.svc.IsSecondFactorEnabled(context.Background(), "user-2")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestTwoFactorService_BuildChallengeRedirect(t *testing.T) {
	f := newTwoFactorFixture(t)

	target := f.svc.BuildChallengeRedirect("user-1", "tok", "http://example.test/dashboard")

	u, err := url.Parse(target)
	require.NoError(t, err)
	assert.Equal(t, "/2fa/validate", u.Path)
	assert.Equal(t, "validate_2fa", u.Query().Get("action"))
	assert.Equal(t, "user-1", u.Query().Get("auth_id"))
	assert.Equal(t, "tok", u.Query().Get("nonce"))
	assert.Equal(t, "http://example.test/dashboard", u.Query().Get("redirect_to"))
}

func TestTwoFactorService_Validate_Success(t *testing.T) {
	f := newTwoFactorFixture(t)
	token := f.issue(t)

	res, err := f.svc.Validate(context.Background(), "user-1", token, f.code(t, f.now))

	require.NoError(t, err)
	assert.Equal(t, "user-1", res.UserID)
	assert.Equal(t, "http://example.test/dashboard", res.RedirectTo)
	assert.True(t, res.Remember)
	assert.Empty(t, res.RetryToken)
	assert.Equal(t, 0, f.repo.NonceCount())
}

func TestTwoFactorService_Validate_NonceSingleUse(t *testing.T) {
	f := newTwoFactorFixture(t)
	token := f.issue(t)

	_, err := f.svc.Validate(context.Background(), "user-1", token, f.code(t, f.now))
	require.NoError(t, err)

	_, err = f.svc.Validate(context.Background(), "user-1", token, f.code(t, f.now))
	assert.ErrorIs(t, err, models.ErrInvalidNonce)
}

func TestTwoFactorService_Validate_ReplayedStepRejected(t *testing.T) {
	f := newTwoFactorFixture(t)
	code := f.code(t, f.now)

	_, err := f.svc.Validate(context.Background(), "user-1", f.issue(t), code)
	require.NoError(t, err)

	res, err := f.svc.Validate(context.Background(), "user-1", f.issue(t), code)
	assert.ErrorIs(t, err, models.ErrInvalidOTP)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.RetryToken)
}

func TestTwoFactorService_Validate_WrongCodeIssuesRetry(t *testing.T) {
	f := newTwoFactorFixture(t)
	token := f.issue(t)

	res, err := f.svc.Validate(context.Background(), "user-1", token, "12345")

	assert.ErrorIs(t, err, models.ErrInvalidOTP)
	require.NotNil(t, res)
	require.NotEmpty(t, res.RetryToken)
	assert.NotEqual(t, token, res.RetryToken)
	assert.Equal(t, 1, f.store.Count("2fa:user-1"))

	ok, err := f.svc.Validate(context.Background(), "user-1", res.RetryToken, f.code(t, f.now))
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/dashboard", ok.RedirectTo)
	assert.Equal(t, 0, f.store.Count("2fa:user-1"))
}

func TestTwoFactorService_Validate_MismatchedUser(t *testing.T) {
	f := newTwoFactorFixture(t)
	token := f.issue(t)

	_, err := f.svc.Validate(context.Background(), "user-2", token, f.code(t, f.now))
	assert.ErrorIs(t, err, models.ErrInvalidNonce)
}

func TestTwoFactorService_Validate_ExpiredNonce(t *testing.T) {
	f := newTwoFactorFixture(t)
	token := f.issue(t)

	later := f.now.Add(6 * time.Minute)
	f.svc.nowFunc = func() time.Time { return later }

	_, err := f.svc.Validate(context.Background(), "user-1", token, f.code(t, later))
	assert.ErrorIs(t, err, models.ErrInvalidNonce)
}

func TestTwoFactorService_Validate_RateLimited(t *testing.T) {
	f := newTwoFactorFixture(t)

	token := f.issue(t)
	for i := 0; i < 3; i++ {
		res, err := f.svc.Validate(context.Background(), "user-1", token, "12345")
		require.ErrorIs(t, err, models.ErrInvalidOTP)
		token = res.RetryToken
	}

	_, err := f.svc.Validate(context.Background(), "user-1", token, f.code(t, f.now))
	assert.ErrorIs(t, err, models.ErrTooManyAttempts)
}
