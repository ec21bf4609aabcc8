package cache

import (
	"context"
	"sync"
	"time"

	"flightproxy/internal/flight/models"
	"flightproxy/pkg/platform/sentinel"
)

type entry struct {
	record    models.FlightRecord
	expiresAt time.Time
}

// InMemoryStore is a process-local cache. Entries expire lazily on read;
// StartSweeper bounds memory by removing expired entries periodically.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// MemoryOption configures an InMemoryStore.
type MemoryOption func(*InMemoryStore)

// WithClock injects the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the cached record.
func (s *InMemoryStore) Get(_ context.Context, key string) (*models.FlightRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, sentinel.ErrNotFound
	}
	rec := e.record
	return &rec, nil
}

// Put stores a copy of record until now+ttl, replacing any earlier entry.
func (s *InMemoryStore) Put(_ context.Context, key string, record *models.FlightRecord, ttl time.Duration) error {
	if err := validatePut(key, record, ttl); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{record: *record, expiresAt: s.now().Add(ttl)}
	return nil
}

// Len reports the number of stored entries, expired or not.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartSweeper runs periodic cleanup of expired entries until ctx is cancelled.
func (s *InMemoryStore) StartSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RemoveExpiredAt(s.now())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RemoveExpiredAt removes all entries that have expired as of now and
// returns how many were dropped.
func (s *InMemoryStore) RemoveExpiredAt(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
