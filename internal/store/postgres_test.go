package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-resolver/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

var jobRowColumns = []string{"id", "tenant_id", "scope_id", "group_id", "kind", "address", "lat", "lng", "status", "result", "error", "created_at", "updated_at"}

func TestPostgresStore_ListQueued_Filter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()
	lat := 27.4

	mock.ExpectQuery(regexp.QuoteMeta("FROM enrichment_jobs WHERE tenant_id = $1 AND scope_id = $2 AND status = $3 ORDER BY seq LIMIT $4 OFFSET $5")).
		WithArgs("t1", "batch-7", "queued", 50, 0).
		WillReturnRows(pgxmock.NewRows(jobRowColumns).
			AddRow("j1", "t1", "batch-7", "", "property", "1 MAIN ST", (*float64)(nil), (*float64)(nil),
				"queued", []byte(nil), (*string)(nil), now, now).
			AddRow("j2", "t1", "batch-7", "", "skiptrace", "", &lat, &lat,
				"queued", []byte(nil), (*string)(nil), now, now))

	jobs, err := s.ListQueued(context.Background(), JobFilter{TenantID: "t1", ScopeID: "batch-7"}, 50)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j1", jobs[0].ID)
	assert.Equal(t, model.JobKindSkipTrace, jobs[1].Kind)
	require.NotNil(t, jobs[1].Lat)
	assert.InDelta(t, 27.4, *jobs[1].Lat, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkRunning(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrichment_jobs SET status = $1, updated_at = now() WHERE id = $2 AND status = $3")).
		WithArgs("running", "j1", "queued").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrichment_jobs SET status = $1")).
		WithArgs("running", "j2", "queued").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.MarkRunning(context.Background(), "j1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkRunning(context.Background(), "j2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkDone(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	result := json.RawMessage(`{"source":"gis_st_lucie"}`)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrichment_jobs SET status = $1, result = $2")).
		WithArgs("done", []byte(result), "j1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.MarkDone(context.Background(), "j1", result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkError_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrichment_jobs SET status = $1, error = $2")).
		WithArgs("error", "boom", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkError(context.Background(), "missing", "boom")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrJobNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnqueueBatch_UsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"enrichment_jobs"}, copyColumns).WillReturnResult(2)

	jobs, err := s.EnqueueBatch(context.Background(), []model.EnrichmentJob{
		{Address: "1 Main St", TenantID: "t1"},
		{Address: "2 Main St", TenantID: "t1", Kind: model.JobKindSkipTrace},
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.NotEmpty(t, jobs[0].ID)
	assert.NotEqual(t, jobs[0].ID, jobs[1].ID)
	assert.Equal(t, model.JobKindProperty, jobs[0].Kind)
	assert.Equal(t, model.JobStatusQueued, jobs[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnqueueBatch_Invalid(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.EnqueueBatch(context.Background(), []model.EnrichmentJob{{Kind: model.JobKindProperty}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address or lat/lng is required")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM enrichment_jobs WHERE id = $1")).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrJobNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountByStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) FROM enrichment_jobs WHERE group_id = $1 GROUP BY status")).
		WithArgs("poly-3").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("done", int64(10)).
			AddRow("error", int64(2)))

	counts, err := s.CountByStatus(context.Background(), JobFilter{GroupID: "poly-3"})
	require.NoError(t, err)
	assert.Equal(t, map[model.JobStatus]int{model.JobStatusDone: 10, model.JobStatusError: 2}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS enrichment_jobs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
