package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightproxy/internal/lookuplog"
)

type fakeExec struct {
	queries []string
	args    [][]any
	err     error
}

func (f *fakeExec) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return driver.RowsAffected(len(args)), f.err
}

func value(t *testing.T, arg any) any {
	t.Helper()
	valuer, ok := arg.(driver.Valuer)
	require.True(t, ok, "argument %T is not a driver.Valuer", arg)
	v, err := valuer.Value()
	require.NoError(t, err)
	return v
}

func TestAppendBuildsOneBatchInsert(t *testing.T) {
	exec := &fakeExec{}
	store := &Store{db: exec}
	at := time.Date(2026, 10, 16, 8, 0, 0, 0, time.FixedZone("CST", 8*3600))
	first, second := uuid.New(), uuid.New()

	err := store.Append(context.Background(), []lookuplog.Entry{
		{ID: first, Requested: "br-805", Normalized: "BR805", Outcome: "found", Airport: "TPE", Status: 200, At: at},
		{ID: second, Requested: "XX1", Normalized: "XX1", Outcome: "not_found", Status: 404, Bot: true, At: at},
	})

	require.NoError(t, err)
	require.Len(t, exec.queries, 1)
	assert.Contains(t, exec.queries[0], "unnest")
	args := exec.args[0]
	require.Len(t, args, 11)
	assert.Equal(t, `{"`+first.String()+`","`+second.String()+`"}`, value(t, args[0]))
	assert.Equal(t, `{"BR805","XX1"}`, value(t, args[2]))
	assert.Equal(t, `{200,404}`, value(t, args[5]))
	assert.Equal(t, `{f,t}`, value(t, args[9]))
	assert.Equal(t, `{"2026-10-16T00:00:00Z","2026-10-16T00:00:00Z"}`, value(t, args[10]))
}

func TestAppendEmptyBatchIsNoop(t *testing.T) {
	exec := &fakeExec{}
	store := &Store{db: exec}

	require.NoError(t, store.Append(context.Background(), nil))
	assert.Empty(t, exec.queries)
}

func TestAppendWrapsErrors(t *testing.T) {
	cause := errors.New("connection refused")
	store := &Store{db: &fakeExec{err: cause}}

	err := store.Append(context.Background(), []lookuplog.Entry{{ID: uuid.New(), At: time.Now()}})

	assert.ErrorIs(t, err, cause)
}

func TestEnsureSchema(t *testing.T) {
	exec := &fakeExec{}
	store := &Store{db: exec}

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.Contains(t, exec.queries[0], "CREATE TABLE IF NOT EXISTS flight_lookups")
}
