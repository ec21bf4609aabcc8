package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"flightproxy/internal/flight/normalize"
	"flightproxy/internal/flight/service"
	"flightproxy/internal/lookuplog"
	dErrors "flightproxy/pkg/domain-errors"
	"flightproxy/pkg/platform/httputil"
	"flightproxy/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service Recorder

const (
	rateLimitMessage = "查詢過於頻繁，請稍後再試"
	notFoundHint     = "請確認航班號碼，或該航班今天可能沒有班次"
	fetchFailedError = "Failed to fetch flight data"
	notFoundError    = "Flight not found"
)

// Service answers flight lookups.
type Service interface {
	Lookup(ctx context.Context, code string, debug bool) (*service.Result, error)
}

// Recorder receives one trail entry per answered request.
type Recorder interface {
	Record(ctx context.Context, e lookuplog.Entry)
}

type Handler struct {
	logger    *slog.Logger
	flights   Service
	recorder  Recorder
	clientKey []byte
}

type Option func(*Handler)

// WithRecorder enables the lookup trail.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) {
		h.recorder = r
	}
}

// WithClientHashKey keys the client IP digest stored in the trail.
func WithClientHashKey(key []byte) Option {
	return func(h *Handler) {
		h.clientKey = key
	}
}

func New(flights Service, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{logger: logger, flights: flights}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the lookup routes. Every path answers lookups, matching
// the public worker URL scheme; unsupported methods get a plain 405.
func (h *Handler) Register(r chi.Router) {
	r.Get("/favicon.ico", h.handleFavicon)
	r.Get("/", h.handleLookup)
	r.Get("/*", h.handleLookup)
	r.MethodNotAllowed(h.handleMethodNotAllowed)
}

type notFoundResponse struct {
	Error        string                `json:"error"`
	FlightNumber string                `json:"flightNumber"`
	Hint         string                `json:"hint"`
	Debug        []service.DebugSample `json:"debug,omitempty"`
}

type rateLimitResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := requestcontext.Now(ctx)

	query := r.URL.Query()
	code := strings.TrimSpace(query.Get("flight"))
	debug := query.Get("debug") == "1"

	res, err := h.flights.Lookup(ctx, code, debug)
	status := h.respond(w, code, res, err)

	h.record(ctx, r, code, res, err, status)
	h.logger.InfoContext(ctx, "flight lookup",
		"request_id", requestcontext.RequestID(ctx),
		"flight", code,
		"status", status,
		"cached", res != nil && res.Cached,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (h *Handler) respond(w http.ResponseWriter, code string, res *service.Result, err error) int {
	if err == nil {
		httputil.WriteJSON(w, http.StatusOK, res.Record)
		return http.StatusOK
	}

	status := dErrors.ToHTTPStatus(dErrors.CodeOf(err))
	switch status {
	case http.StatusBadRequest:
		httputil.WriteJSON(w, status, httputil.ErrorResponse{Error: dErrors.MessageOf(err)})

	case http.StatusTooManyRequests:
		secs, ok := service.RetryAfterSeconds(err)
		if !ok || secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		httputil.WriteJSON(w, status, rateLimitResponse{
			Error:             "rate_limited",
			Message:           rateLimitMessage,
			RetryAfterSeconds: secs,
		})

	case http.StatusNotFound:
		body := notFoundResponse{Error: notFoundError, FlightNumber: code, Hint: notFoundHint}
		if nf, ok := service.NotFoundDetails(err); ok {
			body.Debug = nf.Debug
		}
		httputil.WriteJSON(w, status, body)

	default:
		status = http.StatusInternalServerError
		h.logger.Error("flight lookup failed", "flight", code, "error", err)
		httputil.WriteJSON(w, status, httputil.ErrorResponse{
			Error:   fetchFailedError,
			Message: dErrors.MessageOf(err),
		})
	}
	return status
}

func (h *Handler) record(ctx context.Context, r *http.Request, code string, res *service.Result, err error, status int) {
	if h.recorder == nil {
		return
	}
	agent, bot := lookuplog.ClassifyAgent(r.UserAgent())
	entry := lookuplog.Entry{
		Requested:  code,
		Normalized: normalize.FlightNumber(code),
		Outcome:    outcome(res, err),
		Status:     status,
		RequestID:  requestcontext.RequestID(ctx),
		ClientHash: lookuplog.HashClient(requestcontext.ClientIP(ctx), h.clientKey),
		Agent:      agent,
		Bot:        bot,
		At:         requestcontext.Now(ctx),
	}
	if res != nil {
		entry.Airport = res.Airport
	}
	h.recorder.Record(ctx, entry)
}

func outcome(res *service.Result, err error) string {
	switch {
	case err != nil:
		return string(dErrors.CodeOf(err))
	case res.Cached:
		return "cache_hit"
	default:
		return "found"
	}
}

func (h *Handler) handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "image/x-icon")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_, _ = w.Write([]byte("Method not allowed"))
}
