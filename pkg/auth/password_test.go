package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name    string
		pwd     string
		wantErr bool
	}{
		{"valid", "SecureP@ss123", false},
		{"too short", "Sh0rt!", true},
		{"too long", "Aa1!" + strings.Repeat("x", 80), true},
		{"no upper", "securep@ss123", true},
		{"no digit", "SecureP@ssword", true},
		{"no special", "SecurePass123", true},
		{"common", "Password123!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.pwd)
			if tt.wantErr {
				var verr *PasswordValidationError
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHasher_HashAndCompare(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	hash, err := h.Hash("SecureP@ss123")
	require.NoError(t, err)
	assert.NotEqual(t, "SecureP@ss123", hash)

	assert.NoError(t, h.Compare(hash, "SecureP@ss123"))
	assert.ErrorIs(t, h.Compare(hash, "WrongPassword123!"), ErrMismatch)
	assert.Error(t, h.Compare("not-a-hash", "x"))

	_, err = h.Hash("")
	assert.Error(t, err)

	// must not panic
	h.CompareDummy("anything")
}

func TestHasher_NeedsRehash(t *testing.T) {
	low, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	higher, err := NewHasher(bcrypt.MinCost + 1)
	require.NoError(t, err)

	hash, err := low.Hash("SecureP@ss123")
	require.NoError(t, err)

	assert.False(t, low.NeedsRehash(hash))
	assert.True(t, higher.NeedsRehash(hash))
	assert.True(t, low.NeedsRehash("garbage"))
}

func TestNewHasher_InvalidCostFallsBack(t *testing.T) {
	h, err := NewHasher(99)
	require.NoError(t, err)
	assert.Equal(t, DefaultCost, h.cost)
}
