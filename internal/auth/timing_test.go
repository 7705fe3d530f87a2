package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimingDelay_WaitFrom_OnFailure(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 50})

	start := time.Now()
	td.WaitFrom(context.Background(), start, false)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestTimingDelay_WaitFrom_OnSuccess_NoDelay(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 500})

	start := time.Now()
	td.WaitFrom(context.Background(), start, true)

	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestTimingDelay_WaitFrom_AccountsForElapsed(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 100})

	start := time.Now().Add(-80 * time.Millisecond)
	before := time.Now()
	td.WaitFrom(context.Background(), start, false)

	assert.Less(t, time.Since(before), 80*time.Millisecond)
}

func TestTimingDelay_WaitFrom_ContextCancel(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 5000})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	td.WaitFrom(ctx, start, false)

	assert.Less(t, time.Since(start), time.Second)
}

func TestTimingDelay_NilIsNoop(t *testing.T) {
	var td *TimingDelay
	assert.NotPanics(t, func() { td.WaitFrom(context.Background(), time.Now(), false) })
}
