package service

import (
	"context"
	"time"

	"flightproxy/internal/flight/models"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// TokenSource hands out upstream bearer tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// FlightSource reads airport FIDS partitions.
type FlightSource interface {
	FetchAirport(ctx context.Context, airport, token string) ([]models.RawRecord, error)
	FetchFiltered(ctx context.Context, airport, airline, numeric, token string) ([]models.RawRecord, error)
}

// Limiter is the shared sliding window in front of the upstream.
type Limiter interface {
	TryAcquire() bool
	Remaining() int
	SecondsUntilNextSlot() int
}

// ResultCache stores answered lookups by normalized flight number.
type ResultCache interface {
	Get(ctx context.Context, key string) (*models.FlightRecord, error)
	Put(ctx context.Context, key string, record *models.FlightRecord, ttl time.Duration) error
}
