package repositories

import (
	"context"
	"sync"
	"time"
)

// MemoryNonceStore keeps hashed nonces in process memory.
type MemoryNonceStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{tokens: make(map[string]time.Time)}
}

func (s *MemoryNonceStore) Save(_ context.Context, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[tokenHash] = expiresAt
	return nil
}

func (s *MemoryNonceStore) Consume(_ context.Context, tokenHash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.tokens[tokenHash]
	if !ok {
		return false, nil
	}
	delete(s.tokens, tokenHash)
	return now.Before(expiresAt), nil
}

func (s *MemoryNonceStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, exp := range s.tokens {
		if !now.Before(exp) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}
