// Package cache stores rendered views keyed by content digest and annotation
// fingerprint. Entries are derivable at any time, so every implementation
// degrades to a miss rather than surfacing availability problems to renders.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is the render-result cache contract.
type Cache interface {
	// Get returns the cached payload and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores payload under key for at most ttl.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

type memoryEntry struct {
	payload []byte
	expires time.Time
}

// Memory is an in-process Cache with lazy TTL expiry. It is the default when
// no Redis is configured and the test double everywhere else.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// WithClock overrides the time source. Returns the cache for chaining.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.now().After(entry.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return entry.payload, true, nil
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{payload: payload, expires: m.now().Add(ttl)}
	return nil
}

// Len sweeps expired entries and reports how many remain.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, entry := range m.entries {
		if now.After(entry.expires) {
			delete(m.entries, key)
		}
	}
	return len(m.entries)
}
