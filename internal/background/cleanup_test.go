package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupManager_RunOnce(t *testing.T) {
	var attempts, nonces atomic.Int32
	purgers := map[string]Purger{
		"attempts": PurgeFunc(func(context.Context, time.Time) (int64, error) {
			attempts.Add(1)
			return 3, nil
		}),
		"nonces": PurgeFunc(func(context.Context, time.Time) (int64, error) {
			nonces.Add(1)
			return 0, errors.New("db down")
		}),
	}
	cm := NewCleanupManager(purgers, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)

	cm.RunOnce(context.Background())

	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, int32(1), nonces.Load(), "one failing store does not stop the others")
}

func TestCleanupManager_StartStop(t *testing.T) {
	var runs atomic.Int32
	purgers := map[string]Purger{
		"attempts": PurgeFunc(func(context.Context, time.Time) (int64, error) {
			runs.Add(1)
			return 0, nil
		}),
	}
	cm := NewCleanupManager(purgers, slog.New(slog.NewTextHandler(io.Discard, nil)), 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cm.Stop()
	cm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}
