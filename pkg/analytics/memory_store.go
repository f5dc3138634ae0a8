package analytics

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps events in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]Event
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]Event)}
}

func (s *MemoryStore) Insert(_ context.Context, e Event) error {
	if err := e.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.events[e.ID] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Count(_ context.Context, tenantID, name string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.events {
		if e.TenantID == tenantID && e.Name == name && !e.OccurredAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
