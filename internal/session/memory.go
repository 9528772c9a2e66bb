package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a concurrency-safe, in-memory Store. Sessions live until
// deleted or pruned. The `now` function is injectable for deterministic
// testing.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a ready-to-use in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, sess Session) error {
	cp := sess.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = &cp
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess.Clone(), nil
}

// Touch implements Store.
func (s *MemoryStore) Touch(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	sess.LastQueryAt = s.now()
	return sess.Clone(), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Prune implements Store.
func (s *MemoryStore) Prune(_ context.Context, maxIdle time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pruned := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastQueryAt) > maxIdle {
			delete(s.sessions, id)
			pruned++
		}
	}
	return pruned, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	return out, nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}
