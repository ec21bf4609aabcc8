package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestDefaults(t *testing.T) {
	cfg, err := fromLookup(lookup(nil))

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 30, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 10*time.Second, cfg.Upstream.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Upstream.MaxRetryWait)
	assert.Equal(t, 25*time.Second, cfg.Upstream.LookupTimeout)
	assert.False(t, cfg.Upstream.HasCredentials())
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Trail.KafkaBrokers)
	assert.Equal(t, "flight-lookups", cfg.Trail.Topic)
	assert.Nil(t, cfg.Partitions.InternationalCarriers)
}

func TestOverrides(t *testing.T) {
	cfg, err := fromLookup(lookup(map[string]string{
		"FLIGHT_PROXY_ADDR":       "127.0.0.1:9090",
		"LOG_LEVEL":               "DEBUG",
		"LOG_FORMAT":              "text",
		"TDX_ID":                  "client",
		"TDX_SECRET":              "secret",
		"RATE_LIMIT_MAX":          "10",
		"RATE_LIMIT_WINDOW":       "90",
		"RESULT_CACHE_TTL":        "2m",
		"UPSTREAM_MAX_BACKOFF":    "0s",
		"CARRIERS_DOMESTIC":       " b7, mm,B7 ",
		"PARTITIONS_DEFAULT":      "tsa,tpe",
		"FLIGHT_NUMBER_ALIASES":   "FlightCode, FlightCode",
		"KAFKA_BROKERS":           "k1:9092, k2:9092",
		"REDIS_URL":               "redis://localhost:6379/0",
		"REDIS_POOL_SIZE":         "20",
		"DATABASE_URL":            "postgres://localhost/flights",
		"DATABASE_MAX_OPEN_CONNS": "8",
	}))

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Upstream.HasCredentials())
	assert.Equal(t, 10, cfg.RateLimit.Max)
	assert.Equal(t, 90*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Zero(t, cfg.Upstream.MaxRetryWait)
	assert.Equal(t, []string{"B7", "MM"}, cfg.Partitions.DomesticCarriers)
	assert.Equal(t, []string{"TSA", "TPE"}, cfg.Partitions.DefaultOrder)
	assert.Equal(t, []string{"FlightCode"}, cfg.Upstream.ExtraAliases)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Trail.KafkaBrokers)
	assert.Equal(t, 20, cfg.Redis.PoolSize)
	assert.Equal(t, 8, cfg.Database.MaxOpenConns)
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"unparseable int", map[string]string{"RATE_LIMIT_MAX": "thirty"}, "RATE_LIMIT_MAX"},
		{"unparseable duration", map[string]string{"RESULT_CACHE_TTL": "soon"}, "RESULT_CACHE_TTL"},
		{"zero limit", map[string]string{"RATE_LIMIT_MAX": "0"}, "RATE_LIMIT_MAX must be positive"},
		{"zero lookup timeout", map[string]string{"LOOKUP_TIMEOUT": "0"}, "LOOKUP_TIMEOUT must be positive"},
		{"negative backoff", map[string]string{"UPSTREAM_MAX_BACKOFF": "-1s"}, "UPSTREAM_MAX_BACKOFF"},
		{"unknown log format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromLookup(lookup(tt.vars))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("FLIGHT_PROXY_ADDR", ":7070")

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}
