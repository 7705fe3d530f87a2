package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/BradenHooton/loginpopup/internal/hooks"
	"github.com/BradenHooton/loginpopup/internal/models"
)

// AttemptStore persists fixed-window failure counters. Increment must be atomic.
type AttemptStore interface {
	Get(ctx context.Context, key string, now time.Time) (*models.AttemptRecord, error)
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (models.AttemptRecord, error)
	Delete(ctx context.Context, key string) error
}

// RateLimitConfig holds configuration for rate limiting behavior
type RateLimitConfig struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
}

// RateLimitService counts failed logins per client identity inside a fixed
// window. Store errors never block a login.
type RateLimitService struct {
	store   AttemptStore
	config  RateLimitConfig
	hooks   *hooks.Registry
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(store AttemptStore, config RateLimitConfig, registry *hooks.Registry, logger *slog.Logger) *RateLimitService {
	if registry == nil {
		registry = hooks.NewRegistry(logger)
	}
	return &RateLimitService{
		store:   store,
		config:  config,
		hooks:   registry,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Enabled reports whether rate limiting applies, after the EnableRateLimiting filter
func (s *RateLimitService) Enabled() bool {
	return s.hooks.EnableRateLimiting.Apply(s.config.Enabled)
}

func (s *RateLimitService) maxAttempts() int {
	if n := s.hooks.MaxAttempts.Apply(s.config.MaxAttempts); n > 0 {
		return n
	}
	return 1
}

func (s *RateLimitService) window() time.Duration {
	if w := s.hooks.RateLimitWindow.Apply(s.config.Window); w > 0 {
		return w
	}
	return s.config.Window
}

// IsLimited reports whether identity has used up its attempts in the current window
func (s *RateLimitService) IsLimited(ctx context.Context, identity string) models.RateLimitStatus {
	now := s.nowFunc()

	rec, err := s.store.Get(ctx, AttemptKey(identity), now)
	if err != nil {
		// Fail open for availability - a store outage must not lock out every user
		s.logger.Error("failed to read rate limit record", slog.Any("error", err))
		return models.RateLimitStatus{}
	}
	if rec == nil {
		return models.RateLimitStatus{}
	}

	status := models.RateLimitStatus{Attempts: rec.Count}
	if rec.Count >= s.maxAttempts() {
		status.Limited = true
		status.RetryAfterSeconds = retryAfterSeconds(rec.WindowExpiresAt, now)
	}
	return status
}

// RecordFailure adds one failed attempt for identity
func (s *RateLimitService) RecordFailure(ctx context.Context, identity string) {
	rec, err := s.store.Increment(ctx, AttemptKey(identity), s.window(), s.nowFunc())
	if err != nil {
		s.logger.Error("failed to record login failure", slog.Any("error", err))
		return
	}

	if rec.Count >= s.maxAttempts() {
		s.logger.Warn("client rate limited",
			slog.String("identity", identity),
			slog.Int("failed_attempts", rec.Count),
			slog.Time("window_expires_at", rec.WindowExpiresAt))
	}
}

// Clear forgets the failures of identity, called after a successful login
func (s *RateLimitService) Clear(ctx context.Context, identity string) {
	if err := s.store.Delete(ctx, AttemptKey(identity)); err != nil {
		s.logger.Error("failed to clear rate limit record", slog.Any("error", err))
	}
}

// AttemptKey derives the store key for a client identity
func AttemptKey(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}

func retryAfterSeconds(expiresAt, now time.Time) int {
	remaining := expiresAt.Sub(now).Seconds()
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining))
}

// RateLimitMessage renders the user-facing lockout message
func RateLimitMessage(retryAfterSeconds int) string {
	minutes := int(math.Ceil(float64(retryAfterSeconds) / 60))
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("Too many login attempts. Please try again in %d minute(s).", minutes)
}
