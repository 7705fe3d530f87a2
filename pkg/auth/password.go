package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultCost    = 12
	MinPasswordLen = 8
	MaxPasswordLen = 72 // bcrypt ignores input beyond 72 bytes
)

// ErrMismatch is returned when a password does not match its hash.
var ErrMismatch = errors.New("password does not match")

// PasswordValidationError holds validation error details (internal use only)
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return "invalid password: " + strings.Join(e.Errors, "; ")
}

var commonPasswords = map[string]bool{
	"password": true, "12345678": true, "qwerty": true, "abc123": true,
	"password123": true, "password123!": true, "letmein": true, "welcome": true,
	"passw0rd": true, "trustno1": true, "changeme": true, "iloveyou": true,
}

// Hasher hashes and verifies passwords with bcrypt.
type Hasher struct {
	cost int
	// dummy is compared against when the account does not exist so a miss
	// costs about the same as a wrong password.
	dummy []byte
}

// NewHasher creates a hasher. Costs outside bcrypt's range fall back to DefaultCost.
func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("loginpopup-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &Hasher{cost: cost, dummy: dummy}, nil
}

func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare returns nil on match and ErrMismatch otherwise.
func (h *Hasher) Compare(hashed, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}

// CompareDummy burns one comparison for a login that has no account.
func (h *Hasher) CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}

// NeedsRehash reports whether hashed was produced with a different cost.
func (h *Hasher) NeedsRehash(hashed string) bool {
	cost, err := bcrypt.Cost([]byte(hashed))
	return err != nil || cost != h.cost
}

// ValidatePassword enforces strong password requirements for new accounts.
func ValidatePassword(password string) error {
	problems := make([]string, 0)

	if len(password) < MinPasswordLen {
		problems = append(problems, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		problems = append(problems, fmt.Sprintf("must be at most %d characters", MaxPasswordLen))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasUpper || !hasLower {
		problems = append(problems, "must mix upper and lower case letters")
	}
	if !hasDigit {
		problems = append(problems, "must contain at least one digit")
	}
	if !hasSpecial {
		problems = append(problems, "must contain at least one special character")
	}
	if commonPasswords[strings.ToLower(password)] {
		problems = append(problems, "is too common")
	}

	if len(problems) > 0 {
		return &PasswordValidationError{Errors: problems}
	}
	return nil
}
