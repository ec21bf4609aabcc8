package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for flight lookups. All methods are safe on
// a nil receiver so components can run without metrics in tests.
type Metrics struct {
	// Lookup outcomes: found, not_found, rate_limited, upstream_failure, auth_failure
	LookupOutcome *prometheus.CounterVec

	// Result cache hits and misses
	CacheResult *prometheus.CounterVec

	// Upstream calls by airport, kind (full, filtered) and HTTP status
	UpstreamCalls *prometheus.CounterVec

	// Upstream call latency including the bounded retry
	UpstreamLatency *prometheus.HistogramVec

	// Lookups refused by the local sliding window
	LimiterDenials prometheus.Counter

	// Token exchanges by result (ok, error)
	TokenRefreshes *prometheus.CounterVec

	// Overall lookup latency
	LookupLatency prometheus.Histogram
}

// New creates the flight metrics registered on reg. A nil reg builds
// unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LookupOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightproxy_lookups_total",
			Help: "Total flight lookups by outcome",
		}, []string{"outcome"}),

		CacheResult: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightproxy_result_cache_total",
			Help: "Result cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss", "error"

		UpstreamCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightproxy_upstream_requests_total",
			Help: "Upstream FIDS requests by airport, kind and status code",
		}, []string{"airport", "kind", "status"}),

		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightproxy_upstream_duration_seconds",
			Help:    "Duration of upstream FIDS requests by airport",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"airport"}),

		LimiterDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightproxy_rate_limiter_denials_total",
			Help: "Lookups refused by the local upstream rate limiter",
		}),

		TokenRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightproxy_token_refreshes_total",
			Help: "OAuth client-credentials exchanges by result",
		}, []string{"result"}),

		LookupLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flightproxy_lookup_duration_seconds",
			Help:    "Duration of full flight lookups including upstream calls",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.LookupOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementCache(result string) {
	if m != nil {
		m.CacheResult.WithLabelValues(result).Inc()
	}
}

// ObserveUpstream records one upstream request. status is the HTTP status
// code or "error" for transport failures.
func (m *Metrics) ObserveUpstream(airport, kind, status string, d time.Duration) {
	if m != nil {
		m.UpstreamCalls.WithLabelValues(airport, kind, status).Inc()
		m.UpstreamLatency.WithLabelValues(airport).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementLimiterDenials() {
	if m != nil {
		m.LimiterDenials.Inc()
	}
}

func (m *Metrics) IncrementTokenRefresh(result string) {
	if m != nil {
		m.TokenRefreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ObserveLookupLatency(d time.Duration) {
	if m != nil {
		m.LookupLatency.Observe(d.Seconds())
	}
}
