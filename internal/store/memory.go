package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/beforest-co/supportbot/internal/models"
)

// InMemorySessionStore keeps sessions in a process-local map. It backs tests
// and serves as the degraded path when Redis is unreachable. Contents are lost
// on restart, which is acceptable for soft session state.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewInMemorySessionStore creates an empty in-memory session store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]*models.Session)}
}

// Load fetches the session for a phone.
func (s *InMemorySessionStore) Load(ctx context.Context, phone string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[phone]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(sess), nil
}

// Save upserts the session for a phone.
func (s *InMemorySessionStore) Save(ctx context.Context, phone string, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[phone] = cloneSession(session)
	return nil
}

// Delete removes the session for a phone.
func (s *InMemorySessionStore) Delete(ctx context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, phone)
	return nil
}

// ListActivePhones returns all phones with a stored session.
func (s *InMemorySessionStore) ListActivePhones(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	phones := make([]string, 0, len(s.sessions))
	for phone := range s.sessions {
		phones = append(phones, phone)
	}
	return phones, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemorySessionStore) Close() error {
	slog.Debug("InMemorySessionStore closed")
	return nil
}
