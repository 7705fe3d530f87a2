package popupclient

import (
	"context"
	"time"
)

// WaitPolicy bounds a WaitFor loop
type WaitPolicy struct {
	Interval time.Duration
	Attempts int
}

// DefaultWaitPolicy gives a challenge widget three seconds to produce a token.
var DefaultWaitPolicy = WaitPolicy{Interval: 100 * time.Millisecond, Attempts: 30}

// WaitFor polls cond until it returns true or the attempts run out.
// It reports whether cond was satisfied. Callers proceed either way.
func WaitFor(ctx context.Context, policy WaitPolicy, cond func() bool) bool {
	if cond() {
		return true
	}

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()

	for i := 0; i < policy.Attempts; i++ {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if cond() {
				return true
			}
		}
	}
	return false
}
