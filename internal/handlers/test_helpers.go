package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/loginpopup/internal/auth"
	"github.com/BradenHooton/loginpopup/internal/models"
	"github.com/BradenHooton/loginpopup/internal/services"
)

// NewFormRequest creates a form-encoded POST request for testing
func NewFormRequest(t *testing.T, target string, values url.Values) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// NewMultipartRequest creates a multipart POST request for testing
func NewMultipartRequest(t *testing.T, target string, fields map[string]string) *http.Request {
	t.Helper()
	var body strings.Builder
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body.String()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// DecodeEnvelope checks the content type and decodes an ajax envelope
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data any) bool {
	t.Helper()
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env.Success
}

// NewTestSessions returns a session manager with a fixed test secret
func NewTestSessions(t *testing.T) *auth.SessionManager {
	t.Helper()
	tokens := auth.NewTokenManager(strings.Repeat("s", 32))
	return auth.NewSessionManager(tokens, auth.SessionConfig{
		TTL:         time.Hour,
		RememberTTL: 24 * time.Hour,
		Cookie:      auth.CookieConfig{Name: "test_session", SameSite: "lax"},
	})
}

// WithSession attaches a valid session cookie for userID to req
func WithSession(t *testing.T, sessions *auth.SessionManager, req *http.Request, userID string) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, sessions.Bind(rec).Establish(context.Background(), userID, false))
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockAuthenticator implements AuthenticatorInterface for testing
type MockAuthenticator struct {
	AuthenticateFunc func(ctx context.Context, req models.LoginRequest, sess services.Session) models.AuthResult
	LastRequest      models.LoginRequest
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, req models.LoginRequest, sess services.Session) models.AuthResult {
	m.LastRequest = req
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, req, sess)
	}
	return models.FailureResult(models.FailureInvalidSession, services.MsgInvalidSession)
}

// MockStatusService implements StatusServiceInterface for testing
type MockStatusService struct {
	CheckStatusFunc func(ctx context.Context, authenticated bool, currentURL string) (*models.StatusResult, error)
}

func (m *MockStatusService) CheckStatus(ctx context.Context, authenticated bool, currentURL string) (*models.StatusResult, error) {
	if m.CheckStatusFunc != nil {
		return m.CheckStatusFunc(ctx, authenticated, currentURL)
	}
	if authenticated {
		return &models.StatusResult{Reason: models.ReasonAlreadyLoggedIn}, nil
	}
	return &models.StatusResult{Show: true, HTML: "<form></form>", SessionToken: "tok", RedirectTarget: currentURL}, nil
}

// MockTwoFactorValidator implements TwoFactorValidatorInterface for testing
type MockTwoFactorValidator struct {
	ValidateFunc func(ctx context.Context, userID, token, code string) (*services.TwoFactorValidation, error)
}

func (m *MockTwoFactorValidator) Validate(ctx context.Context, userID, token, code string) (*services.TwoFactorValidation, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, userID, token, code)
	}
	return nil, models.ErrInvalidNonce
}
