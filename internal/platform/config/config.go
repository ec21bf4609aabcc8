package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "flightproxy/pkg/platform/strings"
)

// Config is everything main needs, read once from the environment.
type Config struct {
	Server     Server
	Log        Log
	Upstream   Upstream
	RateLimit  RateLimit
	Cache      Cache
	Partitions Partitions
	Redis      RedisConfig
	Database   DatabaseConfig
	Trail      Trail
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Log struct {
	Level  string
	Format string
}

// Upstream holds the TDX credentials and call bounds. Empty credentials are
// allowed at startup; lookups then fail with an auth error. LookupTimeout
// bounds one whole lookup pass and the server write timeout is derived from it.
type Upstream struct {
	ClientID       string
	ClientSecret   string
	TokenURL       string
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetryWait   time.Duration
	LookupTimeout  time.Duration
	ExtraAliases   []string
}

type RateLimit struct {
	Max    int
	Window time.Duration
}

type Cache struct {
	TTL             time.Duration
	SweepInterval   time.Duration
	BreakerFailures int
}

// Partitions overrides the carrier heuristic. Empty lists keep the defaults.
type Partitions struct {
	InternationalCarriers []string
	DomesticCarriers      []string
	InternationalOrder    []string
	DomesticOrder         []string
	DefaultOrder          []string
}

// RedisConfig enables the shared result cache when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig enables the Postgres lookup trail when URL is set.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
}

// Trail picks where lookup rows go. Kafka wins over Postgres when both are
// configured; with neither, rows stay in memory.
type Trail struct {
	KafkaBrokers []string
	Topic        string
	HashKey      string
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	return fromLookup(os.Getenv)
}

func fromLookup(getenv func(string) string) (Config, error) {
	e := env{getenv: getenv}

	cfg := Config{
		Server: Server{
			Addr:            e.str("FLIGHT_PROXY_ADDR", ":8080"),
			ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Log: Log{
			Level:  strings.ToLower(e.str("LOG_LEVEL", "info")),
			Format: strings.ToLower(e.str("LOG_FORMAT", "json")),
		},
		Upstream: Upstream{
			ClientID:       e.str("TDX_ID", ""),
			ClientSecret:   e.str("TDX_SECRET", ""),
			TokenURL:       e.str("TDX_TOKEN_URL", ""),
			BaseURL:        e.str("TDX_BASE_URL", ""),
			RequestTimeout: e.duration("UPSTREAM_TIMEOUT", 10*time.Second),
			MaxRetryWait:   e.duration("UPSTREAM_MAX_BACKOFF", 5*time.Second),
			LookupTimeout:  e.duration("LOOKUP_TIMEOUT", 25*time.Second),
			ExtraAliases:   pstrings.DedupeAndTrim(e.list("FLIGHT_NUMBER_ALIASES")),
		},
		RateLimit: RateLimit{
			Max:    e.integer("RATE_LIMIT_MAX", 30),
			Window: e.duration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Cache: Cache{
			TTL:             e.duration("RESULT_CACHE_TTL", 5*time.Minute),
			SweepInterval:   e.duration("RESULT_CACHE_SWEEP", time.Minute),
			BreakerFailures: e.integer("RESULT_CACHE_BREAKER_FAILURES", 5),
		},
		Partitions: Partitions{
			InternationalCarriers: pstrings.DedupeAndTrimUpper(e.list("CARRIERS_INTERNATIONAL")),
			DomesticCarriers:      pstrings.DedupeAndTrimUpper(e.list("CARRIERS_DOMESTIC")),
			InternationalOrder:    pstrings.DedupeAndTrimUpper(e.list("PARTITIONS_INTERNATIONAL")),
			DomesticOrder:         pstrings.DedupeAndTrimUpper(e.list("PARTITIONS_DOMESTIC")),
			DefaultOrder:          pstrings.DedupeAndTrimUpper(e.list("PARTITIONS_DEFAULT")),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Database: DatabaseConfig{
			URL:          e.str("DATABASE_URL", ""),
			MaxOpenConns: e.integer("DATABASE_MAX_OPEN_CONNS", 5),
			MaxIdleConns: e.integer("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLife:  e.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Trail: Trail{
			KafkaBrokers: pstrings.DedupeAndTrim(e.list("KAFKA_BROKERS")),
			Topic:        e.str("LOOKUP_TOPIC", "flight-lookups"),
			HashKey:      e.str("LOOKUP_LOG_HASH_KEY", ""),
		},
	}

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.RateLimit.Max <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", c.RateLimit.Max))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimit.Window))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("RESULT_CACHE_TTL must be positive, got %s", c.Cache.TTL))
	}
	if c.Upstream.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", c.Upstream.RequestTimeout))
	}
	if c.Upstream.LookupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("LOOKUP_TIMEOUT must be positive, got %s", c.Upstream.LookupTimeout))
	}
	if c.Upstream.MaxRetryWait < 0 {
		errs = append(errs, fmt.Errorf("UPSTREAM_MAX_BACKOFF must not be negative, got %s", c.Upstream.MaxRetryWait))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// HasCredentials reports whether both TDX credentials are set.
func (u Upstream) HasCredentials() bool {
	return u.ClientID != "" && u.ClientSecret != ""
}

type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) list(key string) []string {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func (e *env) integer(key string, def int) int {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

// duration accepts Go durations ("90s", "5m") or bare seconds ("60").
func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
