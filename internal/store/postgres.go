package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-resolver/internal/db"
	"github.com/sells-group/parcel-resolver/internal/model"
)

// PostgresStore implements JobStore on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

var _ JobStore = (*PostgresStore)(nil)

// NewPostgres connects to Postgres and returns a store over the pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS enrichment_jobs (
	seq        BIGSERIAL,
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id  TEXT NOT NULL DEFAULT '',
	scope_id   TEXT NOT NULL DEFAULT '',
	group_id   TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL DEFAULT 'property',
	address    TEXT NOT NULL DEFAULT '',
	lat        DOUBLE PRECISION,
	lng        DOUBLE PRECISION,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_enrichment_jobs_queue ON enrichment_jobs(status, tenant_id, scope_id, seq);
CREATE INDEX IF NOT EXISTS idx_enrichment_jobs_group ON enrichment_jobs(group_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func pgPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

func (s *PostgresStore) ListQueued(ctx context.Context, f JobFilter, limit int) ([]model.EnrichmentJob, error) {
	f.Status = model.JobStatusQueued
	return s.List(ctx, f, limit, 0)
}

func (s *PostgresStore) List(ctx context.Context, f JobFilter, limit, offset int) ([]model.EnrichmentJob, error) {
	where, args := f.where(pgPlaceholder)
	query := fmt.Sprintf("SELECT %s FROM enrichment_jobs%s ORDER BY seq LIMIT %s OFFSET %s",
		jobColumns, where, pgPlaceholder(len(args)+1), pgPlaceholder(len(args)+2))
	args = append(args, clampLimit(limit), max(offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.EnrichmentJob
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: iterate jobs")
}

func (s *PostgresStore) MarkRunning(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE enrichment_jobs SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		string(model.JobStatusRunning), id, string(model.JobStatusQueued),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark running %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) MarkDone(ctx context.Context, id string, result json.RawMessage) error {
	var payload any
	if result != nil {
		payload = []byte(result)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE enrichment_jobs SET status = $1, result = $2, error = NULL, updated_at = now() WHERE id = $3`,
		string(model.JobStatusDone), payload, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark done %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrJobNotFound, "job %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkError(ctx context.Context, id string, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE enrichment_jobs SET status = $1, error = $2, updated_at = now() WHERE id = $3`,
		string(model.JobStatusError), msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark error %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrJobNotFound, "job %s", id)
	}
	return nil
}

func (s *PostgresStore) Enqueue(ctx context.Context, job model.EnrichmentJob) (*model.EnrichmentJob, error) {
	out, err := s.EnqueueBatch(ctx, []model.EnrichmentJob{job})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

var copyColumns = []string{"id", "tenant_id", "scope_id", "group_id", "kind", "address", "lat", "lng", "status", "created_at", "updated_at"}

// EnqueueBatch inserts jobs with the COPY protocol.
func (s *PostgresStore) EnqueueBatch(ctx context.Context, jobs []model.EnrichmentJob) ([]model.EnrichmentJob, error) {
	prepared, err := prepareJobs(jobs, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	rows := make([][]any, len(prepared))
	for i, j := range prepared {
		rows[i] = []any{j.ID, j.TenantID, j.ScopeID, j.GroupID, string(j.Kind), j.Address, j.Lat, j.Lng,
			string(j.Status), j.CreatedAt, j.UpdatedAt}
	}
	if _, err := db.CopyFrom(ctx, s.pool, "enrichment_jobs", copyColumns, rows); err != nil {
		return nil, eris.Wrap(err, "postgres: enqueue")
	}
	return prepared, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.EnrichmentJob, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+jobColumns+" FROM enrichment_jobs WHERE id = $1", id)
	j, err := scanPgJob(row)
	if errors.Is(err, ErrJobNotFound) {
		return nil, eris.Wrapf(ErrJobNotFound, "postgres: get job %s", id)
	}
	return j, err
}

func (s *PostgresStore) CountByStatus(ctx context.Context, f JobFilter) (map[model.JobStatus]int, error) {
	where, args := f.where(pgPlaceholder)
	rows, err := s.pool.Query(ctx, "SELECT status, COUNT(*) FROM enrichment_jobs"+where+" GROUP BY status", args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count jobs")
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.JobStatus(status)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate counts")
}

func scanPgJob(row pgx.Row) (*model.EnrichmentJob, error) {
	var (
		j            model.EnrichmentJob
		kind, status string
		result       []byte
		errMsg       *string
	)
	err := row.Scan(&j.ID, &j.TenantID, &j.ScopeID, &j.GroupID, &kind, &j.Address, &j.Lat, &j.Lng,
		&status, &result, &errMsg, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan job")
	}

	j.Kind = model.JobKind(kind)
	j.Status = model.JobStatus(status)
	if result != nil {
		j.Result = json.RawMessage(result)
	}
	if errMsg != nil {
		j.Error = *errMsg
	}
	return &j, nil
}
