package otp

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

type MemoryStore struct {
	mu          sync.Mutex
	challenges  map[string]*challenge
	maxAttempts int
	now         func() time.Time
}

type challenge struct {
	code      string
	expiresAt time.Time
	attempts  int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(maxAttempts int) *MemoryStore {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	return &MemoryStore{
		challenges:  make(map[string]*challenge),
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

func (s *MemoryStore) Save(_ context.Context, key, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[key] = &challenge{
		code:      code,
		expiresAt: s.now().Add(ttl),
	}

	return nil
}

func (s *MemoryStore) Verify(_ context.Context, key, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[key]
	if !ok {
		return false, nil
	}

	if !s.now().Before(c.expiresAt) {
		delete(s.challenges, key)
		return false, nil
	}

	if subtle.ConstantTimeCompare([]byte(c.code), []byte(code)) == 1 {
		delete(s.challenges, key)
		return true, nil
	}

	c.attempts++
	if c.attempts >= s.maxAttempts {
		delete(s.challenges, key)
	}

	return false, nil
}

func (s *MemoryStore) Discard(_ context.Context, key, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.challenges[key]; ok && c.code == code {
		delete(s.challenges, key)
	}

	return nil
}

// Len returns the number of stored challenges, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.challenges)
}

// Cleanup drops expired challenges and returns how many were removed.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0

	for key, c := range s.challenges {
		if !now.Before(c.expiresAt) {
			delete(s.challenges, key)
			removed++
		}
	}

	return removed
}

// RunJanitor calls Cleanup every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}
