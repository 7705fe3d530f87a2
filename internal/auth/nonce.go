package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/BradenHooton/loginpopup/internal/models"
)

// NonceStore persists hashed nonces with compare-and-delete semantics.
type NonceStore interface {
	Save(ctx context.Context, tokenHash string, expiresAt time.Time) error
	// Consume removes the nonce and reports whether it existed and had not expired.
	Consume(ctx context.Context, tokenHash string, now time.Time) (bool, error)
}

// NonceManager issues and redeems the single-use anti-forgery tokens bound
// to one rendered popup form.
type NonceManager struct {
	store   NonceStore
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewNonceManager(store NonceStore, ttl time.Duration) *NonceManager {
	return &NonceManager{store: store, ttl: ttl, nowFunc: time.Now}
}

// Issue creates a nonce and stores its hash. The raw value is returned to the caller only.
func (m *NonceManager) Issue(ctx context.Context) (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	token := hex.EncodeToString(randomBytes)
	if err := m.store.Save(ctx, HashToken(token), m.nowFunc().Add(m.ttl)); err != nil {
		return "", fmt.Errorf("failed to store nonce: %w", err)
	}

	return token, nil
}

// Redeem consumes token. It returns models.ErrInvalidNonce for a missing,
// unknown, expired or already used token, and a wrapped store error otherwise.
func (m *NonceManager) Redeem(ctx context.Context, token string) error {
	if token == "" {
		return models.ErrInvalidNonce
	}

	ok, err := m.store.Consume(ctx, HashToken(token), m.nowFunc())
	if err != nil {
		return fmt.Errorf("failed to consume nonce: %w", err)
	}
	if !ok {
		return models.ErrInvalidNonce
	}
	return nil
}

// HashToken returns the hex SHA-256 of a token, the form in which tokens are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
