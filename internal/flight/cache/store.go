// Package cache holds recently answered flight records so repeated lookups
// within the TTL never reach the upstream.
//
// Keys are normalized flight numbers. Misses and expired entries are reported
// as sentinel.ErrNotFound. Only successful lookups are ever written.
package cache

import (
	"context"
	"fmt"
	"time"

	"flightproxy/internal/flight/models"
	"flightproxy/pkg/platform/sentinel"
)

// DefaultTTL is how long a flight record is served from cache.
const DefaultTTL = 5 * time.Minute

// Store is a TTL keyed store of flight records.
type Store interface {
	Get(ctx context.Context, key string) (*models.FlightRecord, error)
	Put(ctx context.Context, key string, record *models.FlightRecord, ttl time.Duration) error
}

func validatePut(key string, record *models.FlightRecord, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("cache key is required: %w", sentinel.ErrInvalidState)
	}
	if record == nil {
		return fmt.Errorf("cache record is required: %w", sentinel.ErrInvalidState)
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}
