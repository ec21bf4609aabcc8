package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flightproxy/internal/flight/metrics"
)

const (
	// DefaultTokenURL is the TDX OpenID Connect token endpoint.
	DefaultTokenURL = "https://tdx.transportdata.tw/auth/realms/TDXConnect/protocol/openid-connect/token"

	// tokenRefreshMargin renews tokens this long before the upstream expiry.
	tokenRefreshMargin = 5 * time.Minute

	// defaultTokenLifetime applies when neither expires_in nor a JWT exp claim is present.
	defaultTokenLifetime = 86400 * time.Second

	// maxTokenLifetime caps whatever lifetime the upstream reports.
	maxTokenLifetime = 365 * 24 * time.Hour

	maxErrorBody = 512
)

var ErrMissingCredentials = errors.New("client credentials not configured")

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// TokenCache performs the OAuth client-credentials exchange and holds the
// bearer token until expiry minus the refresh margin. It is shared by all
// requests; concurrent callers that find the token expired wait for a single
// exchange.
type TokenCache struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	now          func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// TokenOption configures a TokenCache.
type TokenOption func(*TokenCache)

func WithTokenURL(u string) TokenOption {
	return func(tc *TokenCache) {
		if u != "" {
			tc.tokenURL = u
		}
	}
}

func WithTokenHTTPClient(hc *http.Client) TokenOption {
	return func(tc *TokenCache) {
		if hc != nil {
			tc.httpClient = hc
		}
	}
}

func WithTokenClock(now func() time.Time) TokenOption {
	return func(tc *TokenCache) {
		if now != nil {
			tc.now = now
		}
	}
}

func WithTokenLogger(logger *slog.Logger) TokenOption {
	return func(tc *TokenCache) {
		if logger != nil {
			tc.logger = logger
		}
	}
}

func WithTokenMetrics(m *metrics.Metrics) TokenOption {
	return func(tc *TokenCache) {
		tc.metrics = m
	}
}

// NewTokenCache creates a token cache for the given credentials. Missing
// credentials are reported on first use, not here.
func NewTokenCache(clientID, clientSecret string, opts ...TokenOption) *TokenCache {
	tc := &TokenCache{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     DefaultTokenURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Token returns a valid bearer token, exchanging credentials when the cached
// one is missing or past its refresh point. Failures cache nothing.
func (tc *TokenCache) Token(ctx context.Context) (string, error) {
	tc.mu.RLock()
	if tc.token != "" && tc.now().Before(tc.expiresAt) {
		token := tc.token
		tc.mu.RUnlock()
		return token, nil
	}
	tc.mu.RUnlock()

	return tc.refresh(ctx)
}

// ExpiresAt reports when the cached token will be refreshed. Zero when no
// token is cached.
func (tc *TokenCache) ExpiresAt() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.expiresAt
}

func (tc *TokenCache) refresh(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	// Double-check after acquiring write lock
	if tc.token != "" && tc.now().Before(tc.expiresAt) {
		return tc.token, nil
	}

	ctx, span := tracer.Start(ctx, "upstream.token_exchange", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	token, lifetime, err := tc.exchange(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token exchange failed")
		tc.metrics.IncrementTokenRefresh("error")
		tc.logger.ErrorContext(ctx, "token exchange failed", "error", err)
		return "", err
	}

	now := tc.now()
	tc.token = token
	tc.expiresAt = now.Add(lifetime - tokenRefreshMargin)
	span.SetAttributes(attribute.Float64("token.lifetime_seconds", lifetime.Seconds()))
	tc.metrics.IncrementTokenRefresh("ok")
	tc.logger.InfoContext(ctx, "access token refreshed", "expires_at", tc.expiresAt)

	return tc.token, nil
}

func (tc *TokenCache) exchange(ctx context.Context) (string, time.Duration, error) {
	if tc.clientID == "" || tc.clientSecret == "" {
		return "", 0, NewProviderError(ErrorAuthentication, "token", "missing credentials", ErrMissingCredentials)
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {tc.clientID},
		"client_secret": {tc.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, NewProviderError(ErrorAuthentication, "token", "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := tc.httpClient.Do(req)
	if err != nil {
		return "", 0, NewProviderError(ErrorAuthentication, "token", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", 0, NewProviderError(ErrorAuthentication, "token",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, NewProviderError(ErrorAuthentication, "token", "decode response", err)
	}
	if tr.AccessToken == "" {
		return "", 0, NewProviderError(ErrorAuthentication, "token", "response has no access_token", nil)
	}

	return tr.AccessToken, tc.lifetime(tr), nil
}

// lifetime prefers expires_in, then the exp claim of a JWT access token, then
// the default of one day.
func (tc *TokenCache) lifetime(tr tokenResponse) time.Duration {
	if tr.ExpiresIn != "" {
		if secs, err := tr.ExpiresIn.Float64(); err == nil && secs > 0 {
			secs = min(secs, maxTokenLifetime.Seconds())
			return time.Duration(secs * float64(time.Second))
		}
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tr.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			if d := exp.Sub(tc.now()); d > 0 {
				return min(d, maxTokenLifetime)
			}
		}
	}

	return defaultTokenLifetime
}
