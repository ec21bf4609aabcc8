package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"flightproxy/internal/flight/handler/mocks"
	"flightproxy/internal/flight/models"
	"flightproxy/internal/flight/service"
	"flightproxy/internal/lookuplog"
	dErrors "flightproxy/pkg/domain-errors"
	"flightproxy/pkg/platform/middleware/cors"
	"flightproxy/pkg/requestcontext"
	"flightproxy/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	flights  *mocks.MockService
	recorder *mocks.MockRecorder
	router   http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.setup()
}

func (s *HandlerSuite) SetupSubTest() {
	s.setup()
}

func (s *HandlerSuite) setup() {
	ctrl := gomock.NewController(s.T())
	s.flights = mocks.NewMockService(ctrl)
	s.recorder = mocks.NewMockRecorder(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	r.Use(cors.Middleware)
	New(s.flights, logger, WithRecorder(s.recorder)).Register(r)
	s.router = r
}

func (s *HandlerSuite) expectRecord(check func(lookuplog.Entry)) {
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, e lookuplog.Entry) { check(e) })
}

func record() *models.FlightRecord {
	return &models.FlightRecord{
		FlightNumber: "BR805",
		Airline:      "長榮航空",
		Status:       models.StatusScheduled,
		Departure:    models.Endpoint{Airport: "台灣桃園國際機場", IATA: "TPE", ICAO: "RCTP", Timezone: "Asia/Taipei"},
		Arrival:      models.Endpoint{Airport: "HKG", IATA: "HKG", Timezone: "Asia/Taipei"},
		Source:       models.SourceTDX,
	}
}

func (s *HandlerSuite) TestFound() {
	s.flights.EXPECT().Lookup(gomock.Any(), "br805", false).
		Return(&service.Result{Record: record(), Airport: "TPE"}, nil)
	s.expectRecord(func(e lookuplog.Entry) {
		s.Equal("br805", e.Requested)
		s.Equal("BR805", e.Normalized)
		s.Equal("found", e.Outcome)
		s.Equal("TPE", e.Airport)
		s.Equal(http.StatusOK, e.Status)
	})

	rr := testutil.DoRequest(s.router, testutil.LookupRequest(s.T(), "br805", false))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	testutil.AssertCORS(s.T(), rr)
	s.Equal("application/json", rr.Header().Get("Content-Type"))
	got := testutil.UnmarshalResponse[models.FlightRecord](s.T(), rr)
	s.Equal(*record(), *got)
}

func (s *HandlerSuite) TestAnyPathServesLookups() {
	s.flights.EXPECT().Lookup(gomock.Any(), "CI220", false).
		Return(&service.Result{Record: record(), Cached: true}, nil)
	s.expectRecord(func(e lookuplog.Entry) { s.Equal("cache_hit", e.Outcome) })

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/lookup?flight=CI220"))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestDebugFlag() {
	s.flights.EXPECT().Lookup(gomock.Any(), "BR805", true).
		Return(&service.Result{Record: record()}, nil)
	s.expectRecord(func(lookuplog.Entry) {})

	rr := testutil.DoRequest(s.router, testutil.LookupRequest(s.T(), "BR805", true))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestMissingFlight() {
	s.flights.EXPECT().Lookup(gomock.Any(), "", false).
		Return(nil, dErrors.New(dErrors.CodeInvalidInput, "Missing flight number parameter"))
	s.expectRecord(func(e lookuplog.Entry) {
		s.Equal("invalid_input", e.Outcome)
		s.Equal(http.StatusBadRequest, e.Status)
	})

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/"))

	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertCORS(s.T(), rr)
	body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal(map[string]any{"error": "Missing flight number parameter"}, *body)
}

func (s *HandlerSuite) TestNotFound() {
	s.Run("plain", func() {
		s.flights.EXPECT().Lookup(gomock.Any(), "XX999", false).
			Return(nil, dErrors.Wrap(&service.NotFoundError{Flight: "XX999"}, dErrors.CodeNotFound, "Flight not found"))
		s.expectRecord(func(e lookuplog.Entry) { s.Equal("not_found", e.Outcome) })

		rr := testutil.DoRequest(s.router, testutil.LookupRequest(s.T(), "XX999", false))

		testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
		body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal("Flight not found", (*body)["error"])
		s.Equal("XX999", (*body)["flightNumber"])
		s.Equal(notFoundHint, (*body)["hint"])
		s.NotContains(*body, "debug")
	})

	s.Run("debug samples", func() {
		samples := []service.DebugSample{
			{Airport: "TPE", Sample: []models.RawRecord{}},
			{Airport: "TSA", Sample: []models.RawRecord{{"FlightNumber": []byte(`"100"`)}}},
		}
		s.flights.EXPECT().Lookup(gomock.Any(), "XX999", true).
			Return(nil, dErrors.Wrap(&service.NotFoundError{Flight: "XX999", Debug: samples}, dErrors.CodeNotFound, "Flight not found"))
		s.expectRecord(func(lookuplog.Entry) {})

		rr := testutil.DoRequest(s.router, testutil.LookupRequest(s.T(), "XX999", true))

		testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
		body := testutil.UnmarshalResponse[notFoundResponse](s.T(), rr)
		s.Require().Len(body.Debug, 2)
		s.Equal("TSA", body.Debug[1].Airport)
		s.Equal("100", body.Debug[1].Sample[0].String("FlightNumber"))
	})
}

func (s *HandlerSuite) TestRateLimited() {
	s.flights.EXPECT().Lookup(gomock.Any(), "BR805", false).
		Return(nil, dErrors.Wrap(&service.RateLimitError{RetryAfterSeconds: 42}, dErrors.CodeRateLimited, "rate limited"))
	s.expectRecord(func(e lookuplog.Entry) { s.Equal(http.StatusTooManyRequests, e.Status) })

	rr := testutil.DoRequest(s.router, testutil.LookupRequest(s.T(), "BR805", false))

	testutil.AssertStatus(s.T(), rr, http.StatusTooManyRequests)
	testutil.AssertCORS(s.T(), rr)
	s.Equal("42", rr.Header().Get("Retry-After"))
	body := testutil.UnmarshalResponse[rateLimitResponse](s.T(), rr)
	s.Equal(rateLimitResponse{Error: "rate_limited", Message: rateLimitMessage, RetryAfterSeconds: 42}, *body)
}

func (s *HandlerSuite) TestRateLimitedWithoutWaitDefaultsToOneSecond() {
	s.flights.EXPECT().Lookup(gomock.Any(), "BR805", false).
		Return(nil, dErrors.New(dErrors.CodeRateLimited, "rate limited"))
	s.expectRecord(func(lookuplog.Entry) {})

	rr := testutil.DoRequest(s.router, testutil.LookupRequest(s.T(), "BR805", false))

	s.Equal("1", rr.Header().Get("Retry-After"))
	testutil.AssertJSONContains(s.T(), rr, "retryAfterSeconds", float64(1))
}

func (s *HandlerSuite) TestFailures() {
	cases := []struct {
		name string
		err  error
	}{
		{"upstream", dErrors.Wrap(errors.New("503"), dErrors.CodeUpstream, "upstream request for TPE failed (provider_outage)")},
		{"auth", dErrors.Wrap(errors.New("401"), dErrors.CodeAuthFailure, "failed to obtain upstream access token")},
		{"timeout", dErrors.Wrap(context.DeadlineExceeded, dErrors.CodeTimeout, "upstream request for TSA timed out")},
		{"unclassified", errors.New("boom")},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.flights.EXPECT().Lookup(gomock.Any(), "BR805", false).Return(nil, tc.err)
			s.expectRecord(func(e lookuplog.Entry) { s.Equal(http.StatusInternalServerError, e.Status) })

			rr := testutil.DoRequest(s.router, testutil.LookupRequest(s.T(), "BR805", false))

			testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
			body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
			s.Equal(fetchFailedError, (*body)["error"])
			s.Equal(dErrors.MessageOf(tc.err), (*body)["message"])
		})
	}
}

func (s *HandlerSuite) TestMethods() {
	s.Run("options preflight", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodOptions, "/?flight=BR805"))

		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
		testutil.AssertCORS(s.T(), rr)
		s.Empty(rr.Body.String())
	})

	s.Run("post is not allowed", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/?flight=BR805"))

		testutil.AssertStatus(s.T(), rr, http.StatusMethodNotAllowed)
		testutil.AssertCORS(s.T(), rr)
		s.Equal("Method not allowed", rr.Body.String())
	})

	s.Run("favicon", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/favicon.ico"))

		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
		s.Equal("image/x-icon", rr.Header().Get("Content-Type"))
	})
}

func (s *HandlerSuite) TestTrailCarriesRequestMetadata() {
	at := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	s.flights.EXPECT().Lookup(gomock.Any(), "BR805", false).
		Return(&service.Result{Record: record(), Airport: "TPE"}, nil)
	s.expectRecord(func(e lookuplog.Entry) {
		s.Equal("req-123", e.RequestID)
		s.Equal(lookuplog.HashClient("198.51.100.4", nil), e.ClientHash)
		s.Equal(at, e.At)
		s.True(e.Bot)
	})

	req := testutil.LookupRequest(s.T(), "BR805", false)
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	ctx := requestcontext.WithRequestID(req.Context(), "req-123")
	ctx = requestcontext.WithClientIP(ctx, "198.51.100.4")
	ctx = requestcontext.WithTime(ctx, at)

	rr := testutil.DoRequest(s.router, req.WithContext(ctx))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestWithoutRecorder() {
	flights := mocks.NewMockService(gomock.NewController(s.T()))
	flights.EXPECT().Lookup(gomock.Any(), "BR805", false).Return(&service.Result{Record: record()}, nil)
	r := chi.NewRouter()
	New(flights, nil).Register(r)

	rr := testutil.DoRequest(r, testutil.LookupRequest(s.T(), "BR805", false))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}
