package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"

	"github.com/BradenHooton/loginpopup/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockAttemptStore is an in-memory AttemptStore with optional error injection
type MockAttemptStore struct {
	mu      sync.Mutex
	records map[string]models.AttemptRecord

	GetErr       error
	IncrementErr error
	DeleteErr    error
}

func NewMockAttemptStore() *MockAttemptStore {
	return &MockAttemptStore{records: make(map[string]models.AttemptRecord)}
}

func (m *MockAttemptStore) Get(ctx context.Context, key string, now time.Time) (*models.AttemptRecord, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || rec.Expired(now) {
		return nil, nil
	}
	return &rec, nil
}

func (m *MockAttemptStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (models.AttemptRecord, error) {
	if m.IncrementErr != nil {
		return models.AttemptRecord{}, m.IncrementErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || rec.Expired(now) {
		rec = models.AttemptRecord{Key: key, WindowExpiresAt: now.Add(window)}
	}
	rec.Count++
	m.records[key] = rec
	return rec, nil
}

func (m *MockAttemptStore) Delete(ctx context.Context, key string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// Count returns the stored count for identity, ignoring expiry
func (m *MockAttemptStore) Count(identity string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[AttemptKey(identity)].Count
}

// MockNonceIssuer hands out sequential tokens and accepts each once
type MockNonceIssuer struct {
	mu     sync.Mutex
	next   int
	issued map[string]bool

	IssueErr  error
	RedeemErr error
}

func NewMockNonceIssuer() *MockNonceIssuer {
	return &MockNonceIssuer{issued: make(map[string]bool)}
}

func (m *MockNonceIssuer) Issue(ctx context.Context) (string, error) {
	if m.IssueErr != nil {
		return "", m.IssueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	token := fmt.Sprintf("nonce-%d", m.next)
	m.issued[token] = true
	return token, nil
}

func (m *MockNonceIssuer) Redeem(ctx context.Context, token string) error {
	if m.RedeemErr != nil {
		return m.RedeemErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.issued[token] {
		return models.ErrInvalidNonce
	}
	delete(m.issued, token)
	return nil
}

// MockIdentityVerifier implements IdentityVerifier for testing
type MockIdentityVerifier struct {
	VerifyFunc func(ctx context.Context, creds models.Credentials) (*models.User, error)
	Calls      int
	LastCreds  models.Credentials
}

func (m *MockIdentityVerifier) Verify(ctx context.Context, creds models.Credentials) (*models.User, error) {
	m.Calls++
	m.LastCreds = creds
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, creds)
	}
	return nil, &models.DirectoryError{Code: models.DirCodeInvalidUsername, Message: "unknown"}
}

// MockChallengeGate implements ChallengeGate for testing
type MockChallengeGate struct {
	VerifyFunc func(ctx context.Context, token, clientIP string) (ChallengeResult, error)
	Calls      int
}

func (m *MockChallengeGate) Verify(ctx context.Context, token, clientIP string) (ChallengeResult, error) {
	m.Calls++
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, token, clientIP)
	}
	return ChallengeResult{Success: true}, nil
}

// MockTwoFactor implements TwoFactorInterceptor for testing
type MockTwoFactor struct {
	EnabledFunc func(ctx context.Context, userID string) (bool, error)
	IssueFunc   func(ctx context.Context, userID, destination string, remember bool) (string, error)
}

func (m *MockTwoFactor) IsSecondFactorEnabled(ctx context.Context, userID string) (bool, error) {
	if m.EnabledFunc != nil {
		return m.EnabledFunc(ctx, userID)
	}
	return false, nil
}

func (m *MockTwoFactor) IssueSecondFactorChallenge(ctx context.Context, userID, destination string, remember bool) (string, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, userID, destination, remember)
	}
	return "2fa-token", nil
}

func (m *MockTwoFactor) BuildChallengeRedirect(userID, token, destination string) string {
	return "/2fa/validate?auth_id=" + userID + "&nonce=" + token + "&redirect_to=" + destination
}

// MockSession records Establish and Clear calls in order
type MockSession struct {
	EstablishErr error
	Calls        []string
	UserID       string
	Remember     bool
}

func (m *MockSession) Establish(ctx context.Context, userID string, remember bool) error {
	m.Calls = append(m.Calls, "establish")
	if m.EstablishErr != nil {
		return m.EstablishErr
	}
	m.UserID = userID
	m.Remember = remember
	return nil
}

func (m *MockSession) Clear() {
	m.Calls = append(m.Calls, "clear")
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByLoginFunc         func(ctx context.Context, login string) (*models.User, error)
	GetByIDFunc            func(ctx context.Context, id string) (*models.User, error)
	UpdatePasswordHashFunc func(ctx context.Context, id, hash string) error
}

func (m *MockUserRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	if m.GetByLoginFunc != nil {
		return m.GetByLoginFunc(ctx, login)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if m.UpdatePasswordHashFunc != nil {
		return m.UpdatePasswordHashFunc(ctx, id, hash)
	}
	return nil
}

// MockSecondFactorRepository is an in-memory SecondFactorRepository
type MockSecondFactorRepository struct {
	mu       sync.Mutex
	factors  map[string]*models.SecondFactor
	nonces   map[string]models.LoginNonce
	lastUsed map[string]time.Time
}

func NewMockSecondFactorRepository() *MockSecondFactorRepository {
	return &MockSecondFactorRepository{
		factors:  make(map[string]*models.SecondFactor),
		nonces:   make(map[string]models.LoginNonce),
		lastUsed: make(map[string]time.Time),
	}
}

func (m *MockSecondFactorRepository) Get(ctx context.Context, userID string) (*models.SecondFactor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sf, ok := m.factors[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *sf
	return &cp, nil
}

func (m *MockSecondFactorRepository) Save(ctx context.Context, sf *models.SecondFactor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sf
	m.factors[sf.UserID] = &cp
	return nil
}

func (m *MockSecondFactorRepository) MarkUsed(ctx context.Context, userID string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.lastUsed[userID]; ok && !last.Before(usedAt) {
		return models.ErrConflict
	}
	m.lastUsed[userID] = usedAt
	return nil
}

func (m *MockSecondFactorRepository) SaveLoginNonce(ctx context.Context, n *models.LoginNonce) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonces[n.TokenHash] = *n
	return nil
}

func (m *MockSecondFactorRepository) ConsumeLoginNonce(ctx context.Context, tokenHash string, now time.Time) (*models.LoginNonce, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nonces[tokenHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	delete(m.nonces, tokenHash)
	if !now.Before(n.ExpiresAt) {
		return nil, models.ErrNotFound
	}
	return &n, nil
}

// NonceCount returns the number of stored login nonces
func (m *MockSecondFactorRepository) NonceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nonces)
}

// MockFormRenderer implements FormRenderer for testing
type MockFormRenderer struct{}

func (MockFormRenderer) Render(sessionToken, redirectTarget string) (string, error) {
	return `<form data-token="` + sessionToken + `" data-redirect="` + redirectTarget + `"></form>`, nil
}

// MockEmailSender implements EmailSender for testing
type MockEmailSender struct {
	mu     sync.Mutex
	Inputs []*ses.SendEmailInput
	Err    error
}

func (m *MockEmailSender) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.Inputs = append(m.Inputs, params)
	id := "msg-1"
	return &ses.SendEmailOutput{MessageId: &id}, nil
}

// NewTestUser creates an active test user
func NewTestUser(id, username, email string) *models.User {
	now := time.Now()
	return &models.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$04$placeholder",
		Status:       models.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
