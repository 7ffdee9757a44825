package session

import (
	"context"
	"log/slog"
	"sync"
)

// Store keeps one Session per identity.
type Store interface {
	// GetOrCreate returns the identity's session, creating a fresh MENU session if none exists.
	GetOrCreate(ctx context.Context, identity string) (*Session, error)
	// Replace stores s as the identity's session.
	Replace(ctx context.Context, identity string, s *Session) error
	// Delete removes the identity's session. Deleting a missing session is not an error.
	Delete(ctx context.Context, identity string) error
}

// Counter is implemented by stores that can report how many sessions they hold.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// MemoryStore is a process-local Store. Sessions are copied on the way in and out
// so a caller's unsaved edits never leak into the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, identity string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[identity]; ok {
		return s.Clone(), nil
	}
	s := New(identity)
	m.sessions[identity] = s
	slog.Debug("MemoryStore created session", "identity", identity)
	return s.Clone(), nil
}

func (m *MemoryStore) Replace(ctx context.Context, identity string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[identity] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, identity)
	slog.Debug("MemoryStore deleted session", "identity", identity)
	return nil
}

// Count returns the number of live sessions.
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}
