package httpserver

import (
	"net/http"
	"time"

	"flightproxy/internal/platform/config"
)

const (
	defaultLookupTimeout = 25 * time.Second

	// writeMargin is left after the lookup deadline for encoding the error
	// response.
	writeMargin = 5 * time.Second
)

// New builds an HTTP server whose write timeout outlasts one bounded lookup
// pass, so a lookup that runs out of time still answers with a 500.
func New(cfg config.Server, upstream config.Upstream, handler http.Handler) *http.Server {
	lookup := upstream.LookupTimeout
	if lookup <= 0 {
		lookup = defaultLookupTimeout
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      lookup + writeMargin,
		IdleTimeout:       60 * time.Second,
	}
}
