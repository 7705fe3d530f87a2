package services_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/loginpopup/internal/hooks"
	"github.com/BradenHooton/loginpopup/internal/models"
	"github.com/BradenHooton/loginpopup/internal/services"
)

func newRateLimitService(store services.AttemptStore, registry *hooks.Registry) *services.RateLimitService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return services.NewRateLimitService(store, services.RateLimitConfig{
		Enabled:     true,
		MaxAttempts: 5,
		Window:      time.Minute,
	}, registry, logger)
}

func TestRateLimitServiceIsLimited_AllowsInitialAttempt(t *testing.T) {
	svc := newRateLimitService(services.NewMockAttemptStore(), nil)

	status := svc.IsLimited(context.Background(), "203.0.113.7")

	assert.False(t, status.Limited)
	assert.Equal(t, 0, status.Attempts)
	assert.Equal(t, 0, status.RetryAfterSeconds)
}

func TestRateLimitServiceIsLimited_BlocksAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	svc := newRateLimitService(services.NewMockAttemptStore(), nil)

	for i := 0; i < 4; i++ {
		svc.RecordFailure(ctx, "203.0.113.7")
	}
	assert.False(t, svc.IsLimited(ctx, "203.0.113.7").Limited)

	svc.RecordFailure(ctx, "203.0.113.7")
	status := svc.IsLimited(ctx, "203.0.113.7")

	assert.True(t, status.Limited)
	assert.Equal(t, 5, status.Attempts)
	assert.Greater(t, status.RetryAfterSeconds, 0)
	assert.LessOrEqual(t, status.RetryAfterSeconds, 60)

	assert.False(t, svc.IsLimited(ctx, "198.51.100.1").Limited, "other identities are unaffected")
}

func TestRateLimitServiceClear(t *testing.T) {
	ctx := context.Background()
	svc := newRateLimitService(services.NewMockAttemptStore(), nil)

	for i := 0; i < 5; i++ {
		svc.RecordFailure(ctx, "203.0.113.7")
	}
	require.True(t, svc.IsLimited(ctx, "203.0.113.7").Limited)

	svc.Clear(ctx, "203.0.113.7")
	assert.False(t, svc.IsLimited(ctx, "203.0.113.7").Limited)
}

func TestRateLimitServiceIsLimited_FailsOpen(t *testing.T) {
	store := services.NewMockAttemptStore()
	store.GetErr = models.ErrStoreUnavailable
	store.IncrementErr = models.ErrStoreUnavailable
	svc := newRateLimitService(store, nil)

	svc.RecordFailure(context.Background(), "203.0.113.7")
	assert.False(t, svc.IsLimited(context.Background(), "203.0.113.7").Limited)
}

func TestRateLimitService_Filters(t *testing.T) {
	ctx := context.Background()
	registry := hooks.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	registry.MaxAttempts.Add(func(int) int { return 2 })
	svc := newRateLimitService(services.NewMockAttemptStore(), registry)

	svc.RecordFailure(ctx, "203.0.113.7")
	assert.False(t, svc.IsLimited(ctx, "203.0.113.7").Limited)
	svc.RecordFailure(ctx, "203.0.113.7")
	assert.True(t, svc.IsLimited(ctx, "203.0.113.7").Limited)

	assert.True(t, svc.Enabled())
	registry.EnableRateLimiting.Add(func(bool) bool { return false })
	assert.False(t, svc.Enabled())
}

func TestAttemptKey(t *testing.T) {
	key := services.AttemptKey("203.0.113.7")

	assert.Len(t, key, 64)
	assert.NotContains(t, key, "203")
	assert.Equal(t, key, services.AttemptKey("203.0.113.7"))
	assert.NotEqual(t, key, services.AttemptKey("203.0.113.8"))
}

func TestRateLimitMessage(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "Too many login attempts. Please try again in 1 minute(s)."},
		{59, "Too many login attempts. Please try again in 1 minute(s)."},
		{60, "Too many login attempts. Please try again in 1 minute(s)."},
		{61, "Too many login attempts. Please try again in 2 minute(s)."},
		{900, "Too many login attempts. Please try again in 15 minute(s)."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, services.RateLimitMessage(tt.seconds))
	}
}
