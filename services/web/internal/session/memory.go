package session

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps sessions in process memory. Entries expire after ttl
// when ttl is positive.
type MemoryBackend struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryBackend builds an in-memory backend.
func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryBackend) Get(_ context.Context, sid string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sid]
	if !ok {
		return nil, false, nil
	}
	if e.expired(m.now()) {
		delete(m.entries, sid)
		return nil, false, nil
	}
	return append([]byte(nil), e.data...), true, nil
}

func (m *MemoryBackend) Put(_ context.Context, sid string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, old := range m.entries {
		if old.expired(now) {
			delete(m.entries, id)
		}
	}
	e := memoryEntry{data: append([]byte(nil), data...)}
	if m.ttl > 0 {
		e.expiresAt = now.Add(m.ttl)
	}
	m.entries[sid] = e
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sid)
	return nil
}
