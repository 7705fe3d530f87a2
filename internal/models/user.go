package models

import (
	"time"
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is an account in the user directory.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	DisplayName  string
	Status       string
	LockedUntil  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsLocked reports whether a temporary lock is active at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}
