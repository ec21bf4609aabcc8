package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"flightproxy/internal/flight/models"
	"flightproxy/pkg/platform/sentinel"
)

const (
	// Redis key prefix for cached flight records
	resultKeyPrefix = "flight:result:"
)

// RedisStore shares the result cache between proxy instances. Records are
// stored as JSON with a native key expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisStore instance.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore constructs a Redis-backed result cache.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: resultKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) Get(ctx context.Context, key string) (*models.FlightRecord, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var rec models.FlightRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// Undecodable values count as misses.
		return nil, sentinel.ErrNotFound
	}
	return &rec, nil
}

// Put writes the record with SET ... PX ttl.
func (s *RedisStore) Put(ctx context.Context, key string, record *models.FlightRecord, ttl time.Duration) error {
	if err := validatePut(key, record, ttl); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode cached record: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
