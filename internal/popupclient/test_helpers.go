package popupclient

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/BradenHooton/loginpopup/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockTransport implements Transport for testing
type MockTransport struct {
	CheckStatusFunc  func(ctx context.Context, currentURL string) (*models.StatusResult, error)
	AuthenticateFunc func(ctx context.Context, req SubmitRequest) (*AuthResponse, error)

	mu       sync.Mutex
	Requests []SubmitRequest
}

func (m *MockTransport) CheckStatus(ctx context.Context, currentURL string) (*models.StatusResult, error) {
	if m.CheckStatusFunc != nil {
		return m.CheckStatusFunc(ctx, currentURL)
	}
	return &models.StatusResult{Show: true, HTML: "<form></form>", SessionToken: "tok-1", RedirectTarget: "https://example.com/"}, nil
}

func (m *MockTransport) Authenticate(ctx context.Context, req SubmitRequest) (*AuthResponse, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, req)
	}
	return &AuthResponse{Success: true, Message: "Login successful! Redirecting..."}, nil
}

// MockChallenge implements ChallengeSource for testing
type MockChallenge struct {
	mu     sync.Mutex
	token  string
	Resets int
}

func (m *MockChallenge) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *MockChallenge) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

func (m *MockChallenge) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.Resets++
}
