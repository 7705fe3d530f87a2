package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAttemptStore_FixedWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAttemptStore(0)
	defer s.Close()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := time.Minute

	rec, err := s.Increment(ctx, "k", window, start)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count)
	assert.Equal(t, start.Add(window), rec.WindowExpiresAt)

	// later failures keep the original expiry
	rec, err = s.Increment(ctx, "k", window, start.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Count)
	assert.Equal(t, start.Add(window), rec.WindowExpiresAt)

	got, err := s.Get(ctx, "k", start.Add(59*time.Second))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Count)

	// window closed
	got, err = s.Get(ctx, "k", start.Add(window))
	require.NoError(t, err)
	assert.Nil(t, got)

	// next failure starts a fresh window
	rec, err = s.Increment(ctx, "k", window, start.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count)
	assert.Equal(t, start.Add(3*time.Minute), rec.WindowExpiresAt)
}

func TestMemoryAttemptStore_DeleteAndPurge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAttemptStore(0)
	defer s.Close()
	now := time.Now()

	_, _ = s.Increment(ctx, "a", time.Minute, now)
	_, _ = s.Increment(ctx, "b", time.Second, now)

	require.NoError(t, s.Delete(ctx, "a"))
	got, _ := s.Get(ctx, "a", now)
	assert.Nil(t, got)

	n, err := s.PurgeExpired(ctx, now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryAttemptStore_ConcurrentIncrement(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAttemptStore(0)
	defer s.Close()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Increment(ctx, "same", time.Minute, now)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "same", now)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Count)
}

func TestMemoryAttemptStore_CloseStopsCleanup(t *testing.T) {
	s := NewMemoryAttemptStore(10 * time.Millisecond)
	_, _ = s.Increment(context.Background(), "x", time.Millisecond, time.Now())

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.records) == 0
	}, time.Second, 10*time.Millisecond)

	s.Close()
	s.Close()
}

func TestMemoryNonceStore_SingleUse(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryNonceStore()
	now := time.Now()

	require.NoError(t, s.Save(ctx, "h1", now.Add(time.Minute)))

	ok, err := s.Consume(ctx, "h1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Consume(ctx, "h1", now)
	require.NoError(t, err)
	assert.False(t, ok, "nonce must not be reusable")

	ok, _ = s.Consume(ctx, "unknown", now)
	assert.False(t, ok)
}

func TestMemoryNonceStore_Expired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryNonceStore()
	now := time.Now()

	require.NoError(t, s.Save(ctx, "h1", now.Add(time.Minute)))
	require.NoError(t, s.Save(ctx, "h2", now.Add(time.Hour)))

	ok, err := s.Consume(ctx, "h1", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.PurgeExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryNonceStore_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryNonceStore()
	now := time.Now()
	require.NoError(t, s.Save(ctx, "race", now.Add(time.Minute)))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Consume(ctx, "race", now); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
