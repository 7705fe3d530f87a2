package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/loginpopup/internal/models"
)

// MemoryAttemptStore keeps failure counters in process memory. It suits a
// single instance; use the postgres or redis store when running replicas.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	records map[string]models.AttemptRecord

	nowFunc     func() time.Time
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

// NewMemoryAttemptStore creates the store and, when cleanupInterval > 0,
// starts a goroutine that drops expired records. Call Close to stop it.
func NewMemoryAttemptStore(cleanupInterval time.Duration) *MemoryAttemptStore {
	s := &MemoryAttemptStore{
		records:     make(map[string]models.AttemptRecord),
		nowFunc:     time.Now,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go s.cleanupLoop(cleanupInterval)
	} else {
		close(s.cleanupDone)
	}

	return s
}

func (s *MemoryAttemptStore) Get(_ context.Context, key string, now time.Time) (*models.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || rec.Expired(now) {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryAttemptStore) Increment(_ context.Context, key string, window time.Duration, now time.Time) (models.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || rec.Expired(now) {
		rec = models.AttemptRecord{Key: key, WindowExpiresAt: now.Add(window)}
	}
	rec.Count++
	s.records[key] = rec

	return rec, nil
}

func (s *MemoryAttemptStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

// PurgeExpired drops every record whose window has closed at now.
func (s *MemoryAttemptStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (s *MemoryAttemptStore) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	<-s.cleanupDone
}

func (s *MemoryAttemptStore) cleanupLoop(interval time.Duration) {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.PurgeExpired(context.Background(), s.nowFunc())
		case <-s.stopCleanup:
			return
		}
	}
}
