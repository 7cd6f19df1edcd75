package throttle

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage keeps counters in a process-local map. Expired records are
// evicted opportunistically every gcEvery increments.
//
// This type is safe for concurrent use.
type MemoryStorage struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	gcEvery uint64
	ops     uint64
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		windows: make(map[string]*window),
		now:     time.Now,
		gcEvery: 1000,
	}
}

// Increment implements Storage.
func (m *MemoryStorage) Increment(_ context.Context, key string, ttl time.Duration, limit int, blockDuration time.Duration, _ string) (Record, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	// GC before touching the requested key so a stale entry for it is dropped too.
	m.ops++
	if m.ops >= m.gcEvery {
		for k, w := range m.windows {
			if !now.Before(w.deadline()) {
				delete(m.windows, k)
			}
		}
		m.ops = 0
	}

	w, ok := m.windows[key]
	if !ok {
		w = &window{}
		m.windows[key] = w
	}
	return w.hit(now, ttl, limit, blockDuration), nil
}

// Len reports how many keys are tracked.
func (m *MemoryStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
