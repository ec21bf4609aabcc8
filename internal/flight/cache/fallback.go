package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"flightproxy/internal/flight/models"
	"flightproxy/pkg/platform/circuit"
	"flightproxy/pkg/platform/sentinel"
)

// FallbackStore fronts a shared primary (Redis) with a local fallback. Primary
// errors are counted by a circuit breaker; while it is open, or when a single
// call fails, reads and writes go to the fallback. The primary is still tried
// on every call so the breaker can close once it recovers.
type FallbackStore struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

// NewFallbackStore wraps primary. A nil breaker gets the package defaults.
func NewFallbackStore(primary, fallback Store, breaker *circuit.Breaker, logger *slog.Logger) *FallbackStore {
	if breaker == nil {
		breaker = circuit.New("result-cache")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackStore{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		logger:   logger,
	}
}

// Degraded reports whether the breaker currently routes around the primary.
func (f *FallbackStore) Degraded() bool {
	return f.breaker.IsOpen()
}

func (f *FallbackStore) Get(ctx context.Context, key string) (*models.FlightRecord, error) {
	rec, err := f.primary.Get(ctx, key)
	if err == nil || errors.Is(err, sentinel.ErrNotFound) {
		if f.recordSuccess(ctx) {
			return rec, err
		}
		return f.fallback.Get(ctx, key)
	}

	f.recordFailure(ctx, err)
	return f.fallback.Get(ctx, key)
}

func (f *FallbackStore) Put(ctx context.Context, key string, record *models.FlightRecord, ttl time.Duration) error {
	if err := validatePut(key, record, ttl); err != nil {
		return err
	}
	if err := f.primary.Put(ctx, key, record, ttl); err != nil {
		f.recordFailure(ctx, err)
		return f.fallback.Put(ctx, key, record, ttl)
	}
	if f.recordSuccess(ctx) {
		return nil
	}
	return f.fallback.Put(ctx, key, record, ttl)
}

func (f *FallbackStore) recordSuccess(ctx context.Context) bool {
	usePrimary, change := f.breaker.RecordSuccess()
	if change.Closed {
		f.logger.InfoContext(ctx, "result cache primary recovered", "breaker", f.breaker.Name())
	}
	return usePrimary
}

func (f *FallbackStore) recordFailure(ctx context.Context, err error) {
	_, change := f.breaker.RecordFailure()
	if change.Opened {
		f.logger.WarnContext(ctx, "result cache primary unavailable, using fallback",
			"breaker", f.breaker.Name(), "error", err)
		return
	}
	f.logger.DebugContext(ctx, "result cache primary error", "error", err)
}
