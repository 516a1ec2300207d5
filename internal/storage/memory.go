package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps history for the process lifetime only.
type MemoryStore struct {
	mu   sync.Mutex
	runs map[string]time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{runs: map[string]time.Time{}}
}

func (m *MemoryStore) Load(ctx context.Context) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Time, len(m.runs))
	for k, v := range m.runs {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Save(ctx context.Context, key string, at time.Time) error {
	m.mu.Lock()
	m.runs[key] = at
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(keys) == 0 {
		m.runs = map[string]time.Time{}
		return nil
	}
	for _, k := range keys {
		delete(m.runs, k)
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
