// Package httptransport assembles the public router: platform middleware,
// health and metrics endpoints, and the flight lookup routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flightproxy/internal/flight/handler"
	"flightproxy/internal/platform/metrics"
	"flightproxy/pkg/platform/httputil"
	"flightproxy/pkg/platform/middleware/cors"
	"flightproxy/pkg/platform/middleware/metadata"
	"flightproxy/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

// HealthCheck probes one optional dependency.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Flights  *handler.Handler
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Health   map[string]HealthCheck
	Logger   *slog.Logger
}

// NewRouter wires all public endpoints.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(cors.Middleware)
	r.Use(d.Metrics.Middleware)

	r.Get("/healthz", handleHealth(d.Health, logger))
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	d.Flights.Register(r)
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth always answers 200: optional dependencies have in-process
// fallbacks, so a failing one degrades rather than breaks the proxy.
func handleHealth(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			err := checks[name](ctx)
			cancel()
			if err != nil {
				logger.WarnContext(r.Context(), "health check failed", "check", name, "error", err)
				resp.Status = "degraded"
				resp.Checks[name] = "unavailable"
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}
