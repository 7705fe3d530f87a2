package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// SessionConfig controls session lifetime and the cookie that carries it.
type SessionConfig struct {
	TTL         time.Duration
	RememberTTL time.Duration
	Cookie      CookieConfig
}

// SessionManager is the cookie session mechanism the popup drives.
type SessionManager struct {
	tokens *TokenManager
	cfg    SessionConfig
}

func NewSessionManager(tokens *TokenManager, cfg SessionConfig) *SessionManager {
	return &SessionManager{tokens: tokens, cfg: cfg}
}

// Current returns the user id of a valid session on r.
func (m *SessionManager) Current(r *http.Request) (string, bool) {
	value, err := GetSessionCookie(r, m.cfg.Cookie)
	if err != nil || value == "" {
		return "", false
	}

	claims, err := m.tokens.ValidateToken(value)
	if err != nil {
		return "", false
	}
	return claims.UserID, true
}

// Bind returns a handle that writes session changes to w.
func (m *SessionManager) Bind(w http.ResponseWriter) *RequestSession {
	return &RequestSession{m: m, w: w}
}

// RequestSession establishes or clears the session for one response.
type RequestSession struct {
	m *SessionManager
	w http.ResponseWriter

	established bool
	cleared     bool
}

// Establish signs a session token for userID and sets the cookie.
// A remembered session gets a persistent cookie; otherwise the cookie
// lasts for the browser session while the token still expires after TTL.
func (s *RequestSession) Establish(_ context.Context, userID string, remember bool) error {
	ttl := s.m.cfg.TTL
	maxAge := 0
	if remember {
		ttl = s.m.cfg.RememberTTL
		maxAge = int(ttl.Seconds())
	}

	token, err := s.m.tokens.GenerateSessionToken(userID, remember, ttl)
	if err != nil {
		return fmt.Errorf("failed to establish session: %w", err)
	}

	SetSessionCookie(s.w, token, maxAge, s.m.cfg.Cookie)
	s.established = true
	s.cleared = false
	return nil
}

// Clear expires the session cookie.
func (s *RequestSession) Clear() {
	ClearSessionCookie(s.w, s.m.cfg.Cookie)
	s.established = false
	s.cleared = true
}

// Established reports whether this response carries a new session.
func (s *RequestSession) Established() bool { return s.established }
