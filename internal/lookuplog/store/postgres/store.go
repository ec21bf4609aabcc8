package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"flightproxy/internal/lookuplog"
)

// Schema creates the trail table. Applied by EnsureSchema at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS flight_lookups (
	id          UUID PRIMARY KEY,
	requested   TEXT NOT NULL,
	normalized  TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	airport     TEXT NOT NULL DEFAULT '',
	status      INTEGER NOT NULL,
	request_id  TEXT NOT NULL DEFAULT '',
	client_hash TEXT NOT NULL DEFAULT '',
	agent       TEXT NOT NULL DEFAULT '',
	bot         BOOLEAN NOT NULL DEFAULT FALSE,
	at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS flight_lookups_normalized_at ON flight_lookups (normalized, at DESC);
`

const insertBatch = `
	INSERT INTO flight_lookups (
		id, requested, normalized, outcome, airport, status,
		request_id, client_hash, agent, bot, at
	)
	SELECT * FROM unnest(
		$1::uuid[], $2::text[], $3::text[], $4::text[], $5::text[], $6::int[],
		$7::text[], $8::text[], $9::text[], $10::bool[], $11::timestamptz[]
	)
	ON CONFLICT (id) DO NOTHING
`

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store writes trail batches with one INSERT per batch. Re-delivered
// entries are ignored by primary key.
type Store struct {
	db dbExecutor
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the table and index when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create flight_lookups: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, entries []lookuplog.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	n := len(entries)
	var (
		ids        = make([]string, n)
		requested  = make([]string, n)
		normalized = make([]string, n)
		outcomes   = make([]string, n)
		airports   = make([]string, n)
		statuses   = make([]int64, n)
		requestIDs = make([]string, n)
		clients    = make([]string, n)
		agents     = make([]string, n)
		bots       = make([]bool, n)
		ats        = make([]string, n)
	)
	for i, e := range entries {
		ids[i] = e.ID.String()
		requested[i] = e.Requested
		normalized[i] = e.Normalized
		outcomes[i] = e.Outcome
		airports[i] = e.Airport
		statuses[i] = int64(e.Status)
		requestIDs[i] = e.RequestID
		clients[i] = e.ClientHash
		agents[i] = e.Agent
		bots[i] = e.Bot
		ats[i] = e.At.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx, insertBatch,
		pq.Array(ids), pq.Array(requested), pq.Array(normalized), pq.Array(outcomes),
		pq.Array(airports), pq.Array(statuses), pq.Array(requestIDs), pq.Array(clients),
		pq.Array(agents), pq.Array(bots), pq.Array(ats),
	)
	if err != nil {
		return fmt.Errorf("insert flight_lookups batch: %w", err)
	}
	return nil
}
