package memory

import (
	"context"
	"sync"

	"flightproxy/internal/lookuplog"
)

// DefaultLimit caps how many entries the in-memory trail retains.
const DefaultLimit = 10000

// InMemoryStore keeps the most recent entries, oldest evicted first.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []lookuplog.Entry
	limit   int
}

func NewInMemoryStore(limit int) *InMemoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &InMemoryStore{limit: limit}
}

func (s *InMemoryStore) Append(_ context.Context, entries []lookuplog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	if over := len(s.entries) - s.limit; over > 0 {
		s.entries = append([]lookuplog.Entry(nil), s.entries[over:]...)
	}
	return nil
}

// ListAll returns a copy of the retained entries, oldest first.
func (s *InMemoryStore) ListAll(_ context.Context) ([]lookuplog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]lookuplog.Entry{}, s.entries...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
