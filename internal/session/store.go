// Package session keeps the small amount of per-visitor state the page needs:
// the chosen theme and a guard that lets each session run only one
// classification at a time.
package session

import (
	"context"
	"sync"
	"time"
)

// Store persists per-session state.
type Store interface {
	// Theme returns the stored theme, or "" when none was chosen.
	Theme(ctx context.Context, sessionID string) (string, error)
	SetTheme(ctx context.Context, sessionID, theme string) error
	// AcquirePipeline marks a classification as running for the session. It
	// reports false when another one still holds the guard.
	AcquirePipeline(ctx context.Context, sessionID, token string, ttl time.Duration) (bool, error)
	// ReleasePipeline clears the guard if token still owns it.
	ReleasePipeline(ctx context.Context, sessionID, token string) error
}

type entry struct {
	value   string
	expires time.Time
}

// MemoryStore is a process-local Store used when no Redis is configured.
type MemoryStore struct {
	mu       sync.Mutex
	themes   map[string]entry
	locks    map[string]entry
	themeTTL time.Duration
	now      func() time.Time
}

// NewMemoryStore returns an empty store; themes expire after themeTTL.
func NewMemoryStore(themeTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		themes:   make(map[string]entry),
		locks:    make(map[string]entry),
		themeTTL: themeTTL,
		now:      time.Now,
	}
}

func (m *MemoryStore) Theme(_ context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.themes[sessionID]
	if !ok || m.expired(e) {
		delete(m.themes, sessionID)
		return "", nil
	}
	return e.value, nil
}

func (m *MemoryStore) SetTheme(_ context.Context, sessionID, theme string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.themes[sessionID] = entry{value: theme, expires: m.deadline(m.themeTTL)}
	return nil
}

func (m *MemoryStore) AcquirePipeline(_ context.Context, sessionID, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.locks[sessionID]; ok && !m.expired(e) {
		return false, nil
	}
	m.locks[sessionID] = entry{value: token, expires: m.deadline(ttl)}
	return true, nil
}

func (m *MemoryStore) ReleasePipeline(_ context.Context, sessionID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.locks[sessionID]; ok && e.value == token {
		delete(m.locks, sessionID)
	}
	return nil
}

func (m *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryStore) expired(e entry) bool {
	return !e.expires.IsZero() && !m.now().Before(e.expires)
}
