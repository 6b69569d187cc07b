package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a TimerStore for single-process deployments.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]time.Time)}
}

var _ TimerStore = (*MemoryStore)(nil)

func (m *MemoryStore) Add(_ context.Context, member string, fireAt time.Time) error {
	m.mu.Lock()
	m.jobs[member] = fireAt
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, member string) error {
	m.mu.Lock()
	delete(m.jobs, member)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Due(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0)
	for k, at := range m.jobs {
		if !at.After(now) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if m.jobs[out[i]].Equal(m.jobs[out[j]]) {
			return out[i] < out[j]
		}
		return m.jobs[out[i]].Before(m.jobs[out[j]])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Claim(_ context.Context, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[member]; !ok {
		return false, nil
	}
	delete(m.jobs, member)
	return true, nil
}

// Pending reports the fire time of a job, if armed.
func (m *MemoryStore) Pending(member string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.jobs[member]
	return at, ok
}

// Member exposes the job naming used by Scheduler, for callers inspecting a store.
func Member(kind Kind, orderID string) string { return member(kind, orderID) }
