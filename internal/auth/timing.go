package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelayMs    int  // Base delay in milliseconds
	RandomDelayMs  int  // Random delay range in milliseconds
	DelayOnSuccess bool // If true, delay even on successful login
}

// TimingDelay pads directory lookups so "unknown user" and "wrong password"
// take about the same time
type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// cryptoRandIntn returns a secure random number between 0 and max (exclusive)
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	randomValue := binary.BigEndian.Uint64(randomBytes)
	return int(randomValue % uint64(max)), nil
}

func (td *TimingDelay) target() time.Duration {
	d := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		if n, err := cryptoRandIntn(td.config.RandomDelayMs); err == nil {
			d += time.Duration(n) * time.Millisecond
		}
	}
	return d
}

// WaitFrom sleeps until at least the target delay has passed since start.
// It returns early when ctx is done.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time, success bool) {
	if td == nil || (success && !td.config.DelayOnSuccess) {
		return
	}

	remaining := td.target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
