package memory

// Package memory provides the in-process, session-scoped token backing.
// Values live only as long as the gateway process, mirroring browser
// sessionStorage semantics.

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// TokenBackend is a concurrency-safe in-memory key-value store.
type TokenBackend struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewTokenBackend creates an empty in-memory backend.
func NewTokenBackend() *TokenBackend {
	return &TokenBackend{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (m *TokenBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", nil
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return "", nil
	}
	return e.value, nil
}

func (m *TokenBackend) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *TokenBackend) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// Len reports the number of live entries; used by tests.
func (m *TokenBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
