// Package service orchestrates a flight lookup: result cache, local rate
// window, token, airport partitions, normalization and cache population.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"flightproxy/internal/flight/cache"
	"flightproxy/internal/flight/metrics"
	"flightproxy/internal/flight/models"
	"flightproxy/internal/flight/normalize"
	"flightproxy/internal/upstream"
	dErrors "flightproxy/pkg/domain-errors"
	"flightproxy/pkg/platform/sentinel"
)

const (
	// debugSampleSize is how many raw records per partition a debug 404 shows.
	debugSampleSize = 3

	// DefaultLookupTimeout bounds one shared upstream pass end to end.
	DefaultLookupTimeout = 25 * time.Second
)

// Result is a successful lookup.
type Result struct {
	Record *models.FlightRecord
	// Airport is the partition that matched; empty for cache hits.
	Airport string
	Cached  bool
}

type Service struct {
	tokens     TokenSource
	flights    FlightSource
	limiter    Limiter
	cache      ResultCache
	aliases    normalize.Aliases
	partitions Partitions
	ttl        time.Duration
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	inflight singleflight.Group
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAliases(a normalize.Aliases) Option {
	return func(s *Service) {
		s.aliases = a
	}
}

func WithPartitions(p Partitions) Option {
	return func(s *Service) {
		s.partitions = p
	}
}

// WithResultTTL sets how long successful lookups are cached.
func WithResultTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLookupTimeout bounds the whole upstream pass: token, every partition,
// retry waits and filtered fallbacks. It must stay below the server's write
// timeout so a slow upstream still gets a 500 out.
func WithLookupTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(
	tokens TokenSource,
	flights FlightSource,
	limiter Limiter,
	results ResultCache,
	opts ...Option,
) (*Service, error) {
	if tokens == nil {
		return nil, errors.New("token source is required")
	}
	if flights == nil {
		return nil, errors.New("flight source is required")
	}
	if limiter == nil {
		return nil, errors.New("limiter is required")
	}
	if results == nil {
		return nil, errors.New("result cache is required")
	}

	svc := &Service{
		tokens:     tokens,
		flights:    flights,
		limiter:    limiter,
		cache:      results,
		aliases:    normalize.DefaultAliases,
		partitions: DefaultPartitions(),
		ttl:        cache.DefaultTTL,
		timeout:    DefaultLookupTimeout,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Lookup answers one flight query. Errors carry a dErrors code:
// CodeInvalidInput, CodeRateLimited (with *RateLimitError), CodeAuthFailure,
// CodeNotFound (with *NotFoundError), CodeUpstream or CodeTimeout.
func (s *Service) Lookup(ctx context.Context, code string, debug bool) (*Result, error) {
	start := s.now()
	res, err := s.lookup(ctx, code, debug)
	s.metrics.ObserveLookupLatency(s.now().Sub(start))
	s.metrics.IncrementOutcome(outcome(res, err))
	return res, err
}

func (s *Service) lookup(ctx context.Context, code string, debug bool) (*Result, error) {
	key := normalize.FlightNumber(code)
	if key == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "Missing flight number parameter")
	}

	if rec, ok := s.cached(ctx, key); ok {
		return &Result{Record: rec, Cached: true}, nil
	}

	// Identical concurrent lookups share one upstream pass. The shared pass
	// is detached from any single caller's cancellation and runs under its
	// own deadline; each caller still stops waiting when its own context ends.
	flightKey := key
	if debug {
		flightKey += "?debug"
	}
	ch := s.inflight.DoChan(flightKey, func() (any, error) {
		passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.fetch(passCtx, key, debug)
	})

	select {
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "lookup cancelled")
	case r := <-ch:
		if r.Shared {
			s.logger.DebugContext(ctx, "joined in-flight lookup", "flight", key)
		}
		if r.Err != nil {
			return nil, r.Err
		}
		shared := r.Val.(*Result)
		rec := *shared.Record
		return &Result{Record: &rec, Airport: shared.Airport}, nil
	}
}

func (s *Service) cached(ctx context.Context, key string) (*models.FlightRecord, bool) {
	rec, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		s.metrics.IncrementCache("hit")
		s.logger.DebugContext(ctx, "result cache hit", "flight", key)
		return rec, true
	case errors.Is(err, sentinel.ErrNotFound):
		s.metrics.IncrementCache("miss")
	default:
		s.metrics.IncrementCache("error")
		s.logger.WarnContext(ctx, "result cache read failed", "flight", key, "error", err)
	}
	return nil, false
}

// lookupRequest is the per-pass state shared by every partition query.
type lookupRequest struct {
	key     string
	airline string
	numeric string
	token   string
	debug   bool
	samples []DebugSample
}

func (s *Service) fetch(ctx context.Context, key string, debug bool) (*Result, error) {
	// Peek only; each upstream call acquires its own slot.
	if s.limiter.Remaining() <= 0 {
		return nil, s.limiterDenied(ctx, key)
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.passExpired(ctx, key)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeAuthFailure, "failed to obtain upstream access token")
	}

	req := &lookupRequest{key: key, token: token, debug: debug}
	req.airline, req.numeric = normalize.Parse(key)

	var failure error
	for _, airport := range s.partitions.For(key) {
		if ctx.Err() != nil {
			return nil, s.passExpired(ctx, key)
		}
		rec, err := s.searchAirport(ctx, req, airport)
		if err != nil {
			if dErrors.Is(err, dErrors.CodeRateLimited) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, s.passExpired(ctx, key)
			}
			s.logger.WarnContext(ctx, "partition lookup failed", "flight", key, "airport", airport, "error", err)
			failure = err
			continue
		}
		if rec != nil {
			s.store(ctx, key, rec)
			s.logger.InfoContext(ctx, "flight matched", "flight", key, "airport", airport)
			return &Result{Record: rec, Airport: airport}, nil
		}
	}

	if ctx.Err() != nil {
		return nil, s.passExpired(ctx, key)
	}
	if failure != nil {
		return nil, failure
	}
	return nil, dErrors.Wrap(&NotFoundError{Flight: key, Debug: req.samples}, dErrors.CodeNotFound, "Flight not found")
}

// searchAirport queries one partition. It returns (nil, nil) when the
// partition answered but holds no matching record.
func (s *Service) searchAirport(ctx context.Context, req *lookupRequest, airport string) (*models.FlightRecord, error) {
	if !s.limiter.TryAcquire() {
		return nil, s.limiterDenied(ctx, req.key)
	}
	records, err := s.flights.FetchAirport(ctx, airport, req.token)
	if err != nil {
		return nil, translate(err, airport)
	}
	if req.debug {
		req.samples = append(req.samples, DebugSample{Airport: airport, Sample: head(records, debugSampleSize)})
	}

	home := normalize.LookupAirport(airport)
	if raw, matched, ok := s.aliases.Match(req.key, records); ok {
		rec := s.aliases.Format(raw, home, matched)
		return &rec, nil
	}
	if len(records) > 0 || req.numeric == "" {
		return nil, nil
	}

	// An empty partition gets one narrow query before giving up on it.
	if ctx.Err() != nil {
		return nil, nil
	}
	if !s.limiter.TryAcquire() {
		return nil, s.limiterDenied(ctx, req.key)
	}
	filtered, err := s.flights.FetchFiltered(ctx, airport, req.airline, req.numeric, req.token)
	if err != nil {
		if upstream.GetCategory(err) == upstream.ErrorRateLimited {
			return nil, translate(err, airport)
		}
		s.logger.WarnContext(ctx, "filtered lookup failed", "flight", req.key, "airport", airport, "error", err)
		return nil, nil
	}
	if raw, matched, ok := s.aliases.Match(req.key, filtered); ok {
		rec := s.aliases.Format(raw, home, matched)
		return &rec, nil
	}
	return nil, nil
}

func (s *Service) store(ctx context.Context, key string, rec *models.FlightRecord) {
	if err := s.cache.Put(ctx, key, rec, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "result cache write failed", "flight", key, "error", err)
	}
}

func (s *Service) limiterDenied(ctx context.Context, key string) error {
	s.metrics.IncrementLimiterDenials()
	secs := max(1, s.limiter.SecondsUntilNextSlot())
	s.logger.WarnContext(ctx, "upstream rate window full", "flight", key, "retry_after_seconds", secs)
	return dErrors.Wrap(&RateLimitError{RetryAfterSeconds: secs}, dErrors.CodeRateLimited, "rate limited")
}

func (s *Service) passExpired(ctx context.Context, key string) error {
	s.logger.WarnContext(ctx, "lookup deadline exceeded", "flight", key, "timeout", s.timeout)
	return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "flight lookup timed out")
}

func translate(err error, airport string) error {
	switch upstream.GetCategory(err) {
	case upstream.ErrorRateLimited:
		wait, _ := upstream.RetryAfter(err)
		secs := int((wait + time.Second - 1) / time.Second)
		return dErrors.Wrap(&RateLimitError{RetryAfterSeconds: max(1, secs), Err: err},
			dErrors.CodeRateLimited, "rate limited by upstream")
	case upstream.ErrorTimeout:
		return dErrors.Wrap(err, dErrors.CodeTimeout, fmt.Sprintf("upstream request for %s timed out", airport))
	default:
		return dErrors.Wrap(err, dErrors.CodeUpstream,
			fmt.Sprintf("upstream request for %s failed (%s)", airport, upstream.GetCategory(err)))
	}
}

func head(records []models.RawRecord, n int) []models.RawRecord {
	out := make([]models.RawRecord, 0, n)
	for i := 0; i < len(records) && i < n; i++ {
		out = append(out, records[i])
	}
	return out
}

func outcome(res *Result, err error) string {
	switch {
	case err == nil && res.Cached:
		return "cache_hit"
	case err == nil:
		return "found"
	default:
		return string(dErrors.CodeOf(err))
	}
}
