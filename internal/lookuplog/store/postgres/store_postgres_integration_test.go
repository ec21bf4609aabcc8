//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"flightproxy/internal/lookuplog"
	"flightproxy/internal/lookuplog/store/postgres"
	"flightproxy/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "flight_lookups"))
}

func (s *PostgresStoreSuite) count() int {
	var n int
	s.Require().NoError(s.postgres.DB.QueryRow("SELECT count(*) FROM flight_lookups").Scan(&n))
	return n
}

func (s *PostgresStoreSuite) TestAppendBatch() {
	ctx := context.Background()
	at := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	id := uuid.New()

	err := s.store.Append(ctx, []lookuplog.Entry{
		{ID: id, Requested: "br-805", Normalized: "BR805", Outcome: "found", Airport: "TPE", Status: 200, RequestID: "req-1", Agent: "Chrome/120", At: at},
		{ID: uuid.New(), Requested: "XX1", Normalized: "XX1", Outcome: "not_found", Status: 404, Bot: true, At: at},
	})
	s.Require().NoError(err)
	s.Equal(2, s.count())

	var (
		normalized, airport string
		status              int
		bot                 bool
		stored              time.Time
	)
	row := s.postgres.DB.QueryRow(
		"SELECT normalized, airport, status, bot, at FROM flight_lookups WHERE id = $1", id)
	s.Require().NoError(row.Scan(&normalized, &airport, &status, &bot, &stored))
	s.Equal("BR805", normalized)
	s.Equal("TPE", airport)
	s.Equal(200, status)
	s.False(bot)
	s.True(at.Equal(stored))
}

func (s *PostgresStoreSuite) TestRedeliveryIsIgnored() {
	ctx := context.Background()
	entry := lookuplog.Entry{ID: uuid.New(), Requested: "CI220", Normalized: "CI220", Outcome: "found", Status: 200, At: time.Now()}

	s.Require().NoError(s.store.Append(ctx, []lookuplog.Entry{entry}))
	s.Require().NoError(s.store.Append(ctx, []lookuplog.Entry{entry}))

	s.Equal(1, s.count())
}

func (s *PostgresStoreSuite) TestPublisherFlushesToPostgres() {
	ctx := context.Background()
	pub := lookuplog.NewPublisher(s.store, lookuplog.WithBatchSize(2))
	for _, code := range []string{"BR805", "CI220", "JX800"} {
		pub.Record(ctx, lookuplog.Entry{Requested: code, Normalized: code, Outcome: "found", Status: 200})
	}

	s.Require().NoError(pub.Flush(ctx))
	s.Equal(3, s.count())
}
