// Package lookuplog keeps a trail of answered flight lookups. Handlers hand
// entries to a Publisher, which batches them in the background to a Sink
// (memory, Postgres or Kafka). Trail failures never change a response.
package lookuplog

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"golang.org/x/crypto/blake2b"
)

// Entry is one row of the trail.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	Requested  string    `json:"requested"`
	Normalized string    `json:"normalized"`
	Outcome    string    `json:"outcome"`
	Airport    string    `json:"airport,omitempty"`
	Status     int       `json:"status"`
	RequestID  string    `json:"request_id,omitempty"`
	ClientHash string    `json:"client_hash,omitempty"`
	Agent      string    `json:"agent,omitempty"`
	Bot        bool      `json:"bot"`
	At         time.Time `json:"at"`
}

// Sink persists batches of entries.
type Sink interface {
	Append(ctx context.Context, entries []Entry) error
}

// HashClient returns a short keyed digest of a client IP so the trail can
// group requests without storing addresses. An empty ip hashes to "".
func HashClient(ip string, key []byte) string {
	if ip == "" {
		return ""
	}
	h, err := blake2b.New256(key)
	if err != nil {
		// Keys longer than 64 bytes are rejected; fall back to unkeyed.
		sum := blake2b.Sum256([]byte(ip))
		return hex.EncodeToString(sum[:8])
	}
	h.Write([]byte(ip))
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// ClassifyAgent reduces a User-Agent header to "browser/version" and a bot
// flag.
func ClassifyAgent(header string) (agent string, bot bool) {
	if header == "" {
		return "", false
	}
	ua := useragent.New(header)
	name, version := ua.Browser()
	if name == "" {
		return "", ua.Bot()
	}
	if version != "" {
		name += "/" + version
	}
	return name, ua.Bot()
}
