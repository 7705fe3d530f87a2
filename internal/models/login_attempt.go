package models

import "time"

// AttemptRecord counts failed logins for one client identity inside a fixed window.
type AttemptRecord struct {
	Key             string    `db:"key"`
	Count           int       `db:"count"`
	WindowExpiresAt time.Time `db:"window_expires_at"`
}

// Expired reports whether the window has closed at now.
func (r AttemptRecord) Expired(now time.Time) bool {
	return !now.Before(r.WindowExpiresAt)
}

// RateLimitStatus is the answer to "is this identity limited right now".
type RateLimitStatus struct {
	Limited           bool
	Attempts          int
	RetryAfterSeconds int
}
