package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Purger deletes expired rows and reports how many were removed
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// PurgeFunc adapts a function to Purger
type PurgeFunc func(ctx context.Context, now time.Time) (int64, error)

func (f PurgeFunc) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return f(ctx, now)
}

// CleanupManager periodically removes expired attempt records and nonces
type CleanupManager struct {
	purgers  map[string]Purger
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	nowFunc  func() time.Time
}

// NewCleanupManager creates a new cleanup manager. purgers are keyed by the
// name used in log lines.
func NewCleanupManager(purgers map[string]Purger, logger *slog.Logger, interval time.Duration) *CleanupManager {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &CleanupManager{
		purgers:  purgers,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		nowFunc:  time.Now,
	}
}

// Start runs the cleanup until ctx is cancelled or Stop is called
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce purges every registered store once
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.nowFunc()
	for name, p := range cm.purgers {
		rowsDeleted, err := p.PurgeExpired(cleanupCtx, now)
		if err != nil {
			cm.logger.Error("failed to purge expired rows", slog.String("store", name), slog.Any("error", err))
			continue
		}
		if rowsDeleted > 0 {
			cm.logger.Info("expired rows purged", slog.String("store", name), slog.Int64("rows_deleted", rowsDeleted))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
