package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func (r *recordingSleeper) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

// scriptedResponse is one canned upstream reply.
type scriptedResponse struct {
	status     int
	retryAfter string
	body       string
}

type FIDSClientSuite struct {
	suite.Suite
	srv      *httptest.Server
	calls    atomic.Int32
	script   []scriptedResponse
	requests []*http.Request
	mu       sync.Mutex
	sleeper  *recordingSleeper
	client   *Client
}

func TestFIDSClientSuite(t *testing.T) {
	suite.Run(t, new(FIDSClientSuite))
}

func (s *FIDSClientSuite) SetupSubTest() {
	s.calls.Store(0)
	s.script = nil
	s.requests = nil
	s.sleeper = &recordingSleeper{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(s.calls.Add(1)) - 1
		s.mu.Lock()
		s.requests = append(s.requests, r.Clone(context.Background()))
		s.mu.Unlock()

		resp := scriptedResponse{status: http.StatusOK, body: `[]`}
		if n < len(s.script) {
			resp = s.script[n]
		}
		if resp.retryAfter != "" {
			w.Header().Set("Retry-After", resp.retryAfter)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}))
	s.client = NewClient(
		WithBaseURL(s.srv.URL),
		WithSleeper(s.sleeper.Sleep),
		WithJitter(func() time.Duration { return 700 * time.Millisecond }),
		WithDefaultRetryAfter(time.Minute),
	)
}

func (s *FIDSClientSuite) TearDownSubTest() {
	s.srv.Close()
}

func (s *FIDSClientSuite) lastRequest() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Require().NotEmpty(s.requests)
	return s.requests[len(s.requests)-1]
}

func (s *FIDSClientSuite) TestFetchAirport() {
	s.Run("requests the full partition with the bearer token", func() {
		s.script = []scriptedResponse{{status: http.StatusOK, body: `[{"FlightNumber":"805","AirlineID":"BR"},{"FlightNo":"CI100"}]`}}

		records, err := s.client.FetchAirport(context.Background(), "TPE", "tok-abc")

		s.Require().NoError(err)
		s.Len(records, 2)
		s.Equal("BR", records[0].String("AirlineID"))

		req := s.lastRequest()
		s.Equal("/v2/Air/FIDS/Airport/TPE", req.URL.Path)
		s.Equal("3000", req.URL.Query().Get("$top"))
		s.Equal("JSON", req.URL.Query().Get("$format"))
		s.Equal("Bearer tok-abc", req.Header.Get("Authorization"))
	})

	s.Run("retries once after Retry-After on 429", func() {
		s.script = []scriptedResponse{
			{status: http.StatusTooManyRequests, retryAfter: "1"},
			{status: http.StatusOK, body: `[{"Flight":"BR805"}]`},
		}

		records, err := s.client.FetchAirport(context.Background(), "TPE", "tok")

		s.Require().NoError(err)
		s.Len(records, 1)
		s.Equal(int32(2), s.calls.Load())
		s.Equal([]time.Duration{time.Second}, s.sleeper.Waits())
	})

	s.Run("jittered backoff when Retry-After is absent", func() {
		s.script = []scriptedResponse{
			{status: http.StatusTooManyRequests},
			{status: http.StatusOK, body: `[]`},
		}

		_, err := s.client.FetchAirport(context.Background(), "TSA", "tok")

		s.Require().NoError(err)
		s.Equal([]time.Duration{700 * time.Millisecond}, s.sleeper.Waits())
	})

	s.Run("second 429 surfaces rate limited with the upstream hint", func() {
		s.script = []scriptedResponse{
			{status: http.StatusTooManyRequests},
			{status: http.StatusTooManyRequests, retryAfter: "2"},
		}

		_, err := s.client.FetchAirport(context.Background(), "TPE", "tok")

		s.Require().Error(err)
		s.Equal(ErrorRateLimited, GetCategory(err))
		wait, ok := RetryAfter(err)
		s.True(ok)
		s.Equal(2*time.Second, wait)
		s.Equal(int32(2), s.calls.Load(), "at most one retry")
	})

	s.Run("second 429 without hint reports the default wait", func() {
		s.script = []scriptedResponse{
			{status: http.StatusTooManyRequests},
			{status: http.StatusTooManyRequests},
		}

		_, err := s.client.FetchAirport(context.Background(), "TPE", "tok")

		wait, ok := RetryAfter(err)
		s.True(ok)
		s.Equal(time.Minute, wait)
	})

	s.Run("long Retry-After is returned without sleeping", func() {
		s.script = []scriptedResponse{{status: http.StatusTooManyRequests, retryAfter: "30"}}

		_, err := s.client.FetchAirport(context.Background(), "TPE", "tok")

		wait, ok := RetryAfter(err)
		s.True(ok)
		s.Equal(30*time.Second, wait)
		s.Empty(s.sleeper.Waits())
		s.Equal(int32(1), s.calls.Load())
	})

	s.Run("server error is an outage without retry", func() {
		s.script = []scriptedResponse{{status: http.StatusBadGateway, body: `bad gateway`}}

		_, err := s.client.FetchAirport(context.Background(), "TPE", "tok")

		s.Require().Error(err)
		s.Equal(ErrorProviderOutage, GetCategory(err))
		s.Equal(int32(1), s.calls.Load())
	})

	s.Run("malformed body is bad data", func() {
		s.script = []scriptedResponse{{status: http.StatusOK, body: `{"not":"a list"`}}

		_, err := s.client.FetchAirport(context.Background(), "TPE", "tok")

		s.Require().Error(err)
		s.Equal(ErrorBadData, GetCategory(err))
	})
}

func (s *FIDSClientSuite) TestFetchFiltered() {
	s.Run("sends the OData filter and never retries", func() {
		s.script = []scriptedResponse{{status: http.StatusTooManyRequests, retryAfter: "1"}}

		_, err := s.client.FetchFiltered(context.Background(), "TPE", "BR", "805", "tok")

		s.Require().Error(err)
		s.Equal(ErrorRateLimited, GetCategory(err))
		s.Equal(int32(1), s.calls.Load())
		s.Empty(s.sleeper.Waits())

		q := s.lastRequest().URL.Query()
		s.Equal("FlightNumber eq '805' and AirlineID eq 'BR'", q.Get("$filter"))
		s.Equal("50", q.Get("$top"))
	})

	s.Run("omits the airline clause for bare numbers", func() {
		records, err := s.client.FetchFiltered(context.Background(), "TSA", "", "8601", "tok")

		s.Require().NoError(err)
		s.Empty(records)
		s.Equal("FlightNumber eq '8601'", s.lastRequest().URL.Query().Get("$filter"))
	})
}

func TestFetchAirport_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRequestTimeout(50*time.Millisecond))
	_, err := client.FetchAirport(context.Background(), "TPE", "tok")

	require.Error(t, err)
	assert.Equal(t, ErrorTimeout, GetCategory(err))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "empty", value: "", want: 0},
		{name: "seconds", value: "5", want: 5 * time.Second},
		{name: "negative", value: "-3", want: 0},
		{name: "http date", value: now.Add(90 * time.Second).Format(http.TimeFormat), want: 90 * time.Second},
		{name: "date in the past", value: now.Add(-time.Minute).Format(http.TimeFormat), want: 0},
		{name: "garbage", value: "soon", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.value, now))
		})
	}
}
