package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flightproxy/internal/flight/metrics"
	"flightproxy/internal/flight/models"
)

const (
	// DefaultBaseURL is the TDX basic API root.
	DefaultBaseURL = "https://tdx.transportdata.tw/api/basic"

	DefaultRequestTimeout = 10 * time.Second

	// DefaultMaxRetryWait caps how long a single 429 backoff may sleep; a
	// longer Retry-After is surfaced to the caller instead.
	DefaultMaxRetryWait = 5 * time.Second

	// DefaultRetryAfter is reported when the upstream 429 carries no hint.
	DefaultRetryAfter = time.Minute

	fullTop     = 3000
	filteredTop = 50

	minJitter  = 400 * time.Millisecond
	jitterSpan = 600 * time.Millisecond

	maxBodyBytes = 32 << 20

	kindFull     = "full"
	kindFiltered = "filtered"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func defaultJitter() time.Duration {
	return minJitter + time.Duration(rand.Int64N(int64(jitterSpan)))
}

// Client reads airport FIDS partitions. Each call is bounded by the request
// timeout; a full fetch retries once on 429, a filtered fetch never retries.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	requestTimeout    time.Duration
	maxRetryWait      time.Duration
	defaultRetryAfter time.Duration
	sleep             Sleeper
	jitter            func() time.Duration
	now               func() time.Time
	logger            *slog.Logger
	metrics           *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

func WithMaxRetryWait(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxRetryWait = d
		}
	}
}

func WithDefaultRetryAfter(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultRetryAfter = d
		}
	}
}

// WithSleeper replaces the backoff wait (useful for testing).
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithJitter replaces the 400-1000ms backoff source (useful for testing).
func WithJitter(j func() time.Duration) Option {
	return func(c *Client) {
		if j != nil {
			c.jitter = j
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a FIDS client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:           DefaultBaseURL,
		httpClient:        &http.Client{},
		requestTimeout:    DefaultRequestTimeout,
		maxRetryWait:      DefaultMaxRetryWait,
		defaultRetryAfter: DefaultRetryAfter,
		sleep:             sleepContext,
		jitter:            defaultJitter,
		now:               time.Now,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAirport returns every FIDS record of one airport partition.
func (c *Client) FetchAirport(ctx context.Context, airport, token string) ([]models.RawRecord, error) {
	query := fmt.Sprintf("$top=%d&$format=JSON", fullTop)
	return c.fetch(ctx, airport, kindFull, query, token, 1)
}

// FetchFiltered asks the partition for one flight by number and, when known,
// airline. Used when a full fetch came back empty.
func (c *Client) FetchFiltered(ctx context.Context, airport, airline, numeric, token string) ([]models.RawRecord, error) {
	filter := fmt.Sprintf("FlightNumber eq '%s'", numeric)
	if airline != "" {
		filter += fmt.Sprintf(" and AirlineID eq '%s'", airline)
	}
	query := fmt.Sprintf("$filter=%s&$top=%d&$format=JSON", url.PathEscape(filter), filteredTop)
	return c.fetch(ctx, airport, kindFiltered, query, token, 0)
}

func (c *Client) fetch(ctx context.Context, airport, kind, query, token string, retries int) ([]models.RawRecord, error) {
	ctx, span := tracer.Start(ctx, "upstream.fids",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("fids.airport", airport),
			attribute.String("fids.kind", kind),
		))
	defer span.End()

	endpoint := fmt.Sprintf("%s/v2/Air/FIDS/Airport/%s?%s", c.baseURL, url.PathEscape(airport), query)
	op := "fids-" + kind + ":" + airport

	for attempt := 0; ; attempt++ {
		records, err := c.do(ctx, airport, kind, op, endpoint, token)
		if err == nil {
			span.SetAttributes(attribute.Int("fids.records", len(records)))
			return records, nil
		}

		var pe *ProviderError
		if !errors.As(err, &pe) || pe.Category != ErrorRateLimited || attempt >= retries {
			return nil, c.fail(span, err)
		}

		wait := pe.RetryAfter
		if wait <= 0 {
			wait = c.jitter()
		}
		if wait > c.maxRetryWait {
			c.logger.WarnContext(ctx, "upstream retry-after exceeds backoff cap",
				"airport", airport, "retry_after", wait, "cap", c.maxRetryWait)
			return nil, c.fail(span, err)
		}

		c.logger.WarnContext(ctx, "upstream returned 429, backing off",
			"airport", airport, "wait", wait, "attempt", attempt+1)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, c.fail(span, NewProviderError(ErrorTimeout, op, "backoff interrupted", err))
		}
	}
}

func (c *Client) fail(span trace.Span, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Category == ErrorRateLimited && pe.RetryAfter <= 0 {
		pe.RetryAfter = c.defaultRetryAfter
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(GetCategory(err)))
	return err
}

func (c *Client) do(ctx context.Context, airport, kind, op, endpoint, token string) ([]models.RawRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewProviderError(ErrorInternal, op, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(airport, kind, "error", c.now().Sub(start))
		return nil, transportError(ctx, op, err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveUpstream(airport, kind, strconv.Itoa(resp.StatusCode), c.now().Sub(start))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, rateLimited(op, parseRetryAfter(resp.Header.Get("Retry-After"), c.now()))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewProviderError(ErrorAuthentication, op, fmt.Sprintf("status %d", resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, NewProviderError(ErrorProviderOutage, op,
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var records []models.RawRecord
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&records); err != nil {
		if ctx.Err() != nil {
			return nil, transportError(ctx, op, err)
		}
		return nil, NewProviderError(ErrorBadData, op, "decode FIDS list", err)
	}
	return records, nil
}

func transportError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewProviderError(ErrorTimeout, op, "request timed out", err)
	}
	return NewProviderError(ErrorProviderOutage, op, "request failed", err)
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Absent or invalid
// values yield zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
