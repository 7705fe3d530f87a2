package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BradenHooton/loginpopup/internal/auth"
	"github.com/BradenHooton/loginpopup/internal/models"
	pkglogger "github.com/BradenHooton/loginpopup/pkg/logger"
)

// SecondFactorRepository defines persistence for TOTP secrets and login nonces
type SecondFactorRepository interface {
	Get(ctx context.Context, userID string) (*models.SecondFactor, error)
	Save(ctx context.Context, sf *models.SecondFactor) error
	MarkUsed(ctx context.Context, userID string, usedAt time.Time) error
	SaveLoginNonce(ctx context.Context, n *models.LoginNonce) error
	ConsumeLoginNonce(ctx context.Context, tokenHash string, now time.Time) (*models.LoginNonce, error)
}

// TwoFactorConfig configures the second-factor flow
type TwoFactorConfig struct {
	// ValidateURL is the absolute or root-relative URL of the code prompt
	ValidateURL string
	TokenTTL    time.Duration
}

// TwoFactorValidation is the outcome of a code submission
type TwoFactorValidation struct {
	UserID     string
	RedirectTo string
	Remember   bool
	// RetryToken replaces the consumed login nonce after a wrong code
	RetryToken string
}

// TwoFactorService intercepts password-verified logins of users with an
// enabled TOTP factor and validates their codes.
type TwoFactorService struct {
	repo    SecondFactorRepository
	totp    *auth.TOTPManager
	limiter *RateLimitService
	audit   *pkglogger.AuditLogger
	config  TwoFactorConfig
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(repo SecondFactorRepository, totpManager *auth.TOTPManager, limiter *RateLimitService, config TwoFactorConfig, logger *slog.Logger) *TwoFactorService {
	if config.TokenTTL <= 0 {
		config.TokenTTL = 10 * time.Minute
	}
	return &TwoFactorService{
		repo:    repo,
		totp:    totpManager,
		limiter: limiter,
		audit:   pkglogger.NewAuditLogger(logger),
		config:  config,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// IsSecondFactorEnabled reports whether userID has an enabled TOTP factor
func (s *TwoFactorService) IsSecondFactorEnabled(ctx context.Context, userID string) (bool, error) {
	sf, err := s.repo.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load second factor: %w", err)
	}
	return sf.Enabled, nil
}

// IssueSecondFactorChallenge stores a single-use login nonce bound to userID
// and returns its raw value
func (s *TwoFactorService) IssueSecondFactorChallenge(ctx context.Context, userID, destination string, remember bool) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate login nonce: %w", err)
	}
	token := hex.EncodeToString(raw)

	nonce := &models.LoginNonce{
		UserID:     userID,
		TokenHash:  auth.HashToken(token),
		RedirectTo: destination,
		Remember:   remember,
		ExpiresAt:  s.nowFunc().Add(s.config.TokenTTL),
	}
	if err := s.repo.SaveLoginNonce(ctx, nonce); err != nil {
		return "", fmt.Errorf("failed to save login nonce: %w", err)
	}
	return token, nil
}

// BuildChallengeRedirect returns the URL of the code prompt for a login nonce
func (s *TwoFactorService) BuildChallengeRedirect(userID, token, destination string) string {
	q := url.Values{}
	q.Set("action", "validate_2fa")
	q.Set("auth_id", userID)
	q.Set("nonce", token)
	if destination != "" {
		q.Set("redirect_to", destination)
	}

	sep := "?"
	if strings.Contains(s.config.ValidateURL, "?") {
		sep = "&"
	}
	return s.config.ValidateURL + sep + q.Encode()
}

// Validate consumes the login nonce and checks code. A wrong code returns
// models.ErrInvalidOTP together with a fresh RetryToken. An unknown, expired
// or mismatched nonce returns models.ErrInvalidNonce.
func (s *TwoFactorService) Validate(ctx context.Context, userID, token, code string) (*TwoFactorValidation, error) {
	now := s.nowFunc()

	if token == "" || userID == "" {
		return nil, models.ErrInvalidNonce
	}

	nonce, err := s.repo.ConsumeLoginNonce(ctx, auth.HashToken(token), now)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidNonce
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume login nonce: %w", err)
	}
	if nonce.UserID != userID {
		s.logger.Warn("login nonce presented for a different user", slog.String("auth_id", userID))
		return nil, models.ErrInvalidNonce
	}

	result := &TwoFactorValidation{
		UserID:     nonce.UserID,
		RedirectTo: nonce.RedirectTo,
		Remember:   nonce.Remember,
	}
	limitKey := "2fa:" + nonce.UserID

	if s.limiter != nil && s.limiter.Enabled() {
		if st := s.limiter.IsLimited(ctx, limitKey); st.Limited {
			s.auditResult(nonce.UserID, false, "rate_limited")
			return nil, models.ErrTooManyAttempts
		}
	}

	ok, err := s.checkCode(ctx, nonce.UserID, strings.TrimSpace(code), now)
	if err != nil {
		return nil, err
	}
	if !ok {
		if s.limiter != nil && s.limiter.Enabled() {
			s.limiter.RecordFailure(ctx, limitKey)
		}
		s.auditResult(nonce.UserID, false, "invalid_code")

		retry, err := s.IssueSecondFactorChallenge(ctx, nonce.UserID, nonce.RedirectTo, nonce.Remember)
		if err != nil {
			return nil, err
		}
		result.RetryToken = retry
		return result, models.ErrInvalidOTP
	}

	if s.limiter != nil {
		s.limiter.Clear(ctx, limitKey)
	}
	s.auditResult(nonce.UserID, true, "")
	return result, nil
}

func (s *TwoFactorService) checkCode(ctx context.Context, userID, code string, now time.Time) (bool, error) {
	if len(code) != 6 {
		return false, nil
	}

	sf, err := s.repo.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load second factor: %w", err)
	}
	if !sf.Enabled {
		return false, nil
	}

	secret, err := s.totp.DecryptSecret(sf.SecretEncrypted, sf.SecretNonce)
	if err != nil {
		return false, err
	}

	valid, err := s.totp.ValidateCode(secret, code, now)
	if err != nil || !valid {
		return false, nil
	}

	// One code step is accepted at most once
	err = s.repo.MarkUsed(ctx, userID, auth.StepStart(now))
	if errors.Is(err, models.ErrConflict) {
		s.logger.Warn("replayed TOTP code rejected", slog.String("user_id", userID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record code use: %w", err)
	}
	return true, nil
}

// Enroll generates a new secret for userID and stores it enabled. The
// enrollment carries the raw secret and its QR code for display.
func (s *TwoFactorService) Enroll(ctx context.Context, userID, accountName string, qrSize int) (*auth.Enrollment, error) {
	enrollment, err := s.totp.Enroll(accountName, qrSize)
	if err != nil {
		return nil, err
	}

	sf := &models.SecondFactor{
		UserID:          userID,
		SecretEncrypted: enrollment.SecretEncrypted,
		SecretNonce:     enrollment.SecretNonce,
		Enabled:         true,
	}
	if err := s.repo.Save(ctx, sf); err != nil {
		return nil, fmt.Errorf("failed to save second factor: %w", err)
	}

	s.audit.LogAccountAction("two_factor_enrolled", userID, "", nil)
	return enrollment, nil
}

func (s *TwoFactorService) auditResult(userID string, success bool, reason string) {
	event := pkglogger.EventTwoFactorFailure
	if success {
		event = pkglogger.EventTwoFactorSuccess
	}
	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     event,
		UserID:        userID,
		Success:       success,
		FailureReason: reason,
	})
}
