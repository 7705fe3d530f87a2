package models

import (
	"time"
)

// SecondFactor is a user's enrolled TOTP secret.
type SecondFactor struct {
	UserID          string
	SecretEncrypted []byte // AES-256-GCM encrypted TOTP secret
	SecretNonce     []byte // GCM nonce (12 bytes)
	Enabled         bool
	LastUsedAt      *time.Time // For replay prevention
	CreatedAt       time.Time
}

// LoginNonce is a single-use token that links a password-verified login to
// the second-factor prompt. Only the hash of the token is stored.
type LoginNonce struct {
	UserID     string
	TokenHash  string
	RedirectTo string
	Remember   bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
