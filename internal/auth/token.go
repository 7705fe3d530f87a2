package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/BradenHooton/loginpopup/internal/models"
)

const sessionTokenType = "session"

// SessionClaims are carried by the session cookie
type SessionClaims struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Remember bool   `json:"remember,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates session JWTs
type TokenManager struct {
	secret  []byte
	nowFunc func() time.Time
}

func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret), nowFunc: time.Now}
}

// GenerateSessionToken creates a session token with a unique JTI
func (tm *TokenManager) GenerateSessionToken(userID string, remember bool, ttl time.Duration) (string, error) {
	now := tm.nowFunc()
	claims := &SessionClaims{
		Type:     sessionTokenType,
		UserID:   userID,
		Remember: remember,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken verifies a token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.nowFunc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid || claims.Type != sessionTokenType || claims.UserID == "" {
		return nil, models.ErrUnauthorized
	}

	return claims, nil
}
