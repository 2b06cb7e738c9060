package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/parcel-resolver/internal/model"
)

// SQLiteStore implements JobStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ JobStore = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas below are per connection; SQLite has a single writer anyway.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS enrichment_jobs (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL DEFAULT '',
	scope_id   TEXT NOT NULL DEFAULT '',
	group_id   TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL DEFAULT 'property',
	address    TEXT NOT NULL DEFAULT '',
	lat        REAL,
	lng        REAL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_enrichment_jobs_status ON enrichment_jobs(status, tenant_id, scope_id);
CREATE INDEX IF NOT EXISTS idx_enrichment_jobs_group ON enrichment_jobs(group_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sqlitePlaceholder(int) string { return "?" }

func (s *SQLiteStore) ListQueued(ctx context.Context, f JobFilter, limit int) ([]model.EnrichmentJob, error) {
	f.Status = model.JobStatusQueued
	return s.List(ctx, f, limit, 0)
}

func (s *SQLiteStore) List(ctx context.Context, f JobFilter, limit, offset int) ([]model.EnrichmentJob, error) {
	where, args := f.where(sqlitePlaceholder)
	query := fmt.Sprintf("SELECT %s FROM enrichment_jobs%s ORDER BY rowid LIMIT ? OFFSET ?", jobColumns, where)
	args = append(args, clampLimit(limit), max(offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var jobs []model.EnrichmentJob
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: iterate jobs")
}

func (s *SQLiteStore) MarkRunning(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.JobStatusRunning), time.Now().UTC(), id, string(model.JobStatusQueued),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark running %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) MarkDone(ctx context.Context, id string, result json.RawMessage) error {
	var payload any
	if result != nil {
		payload = string(result)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET status = ?, result = ?, error = NULL, updated_at = ? WHERE id = ?`,
		string(model.JobStatusDone), payload, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark done %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) MarkError(ctx context.Context, id string, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.JobStatusError), msg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark error %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) Enqueue(ctx context.Context, job model.EnrichmentJob) (*model.EnrichmentJob, error) {
	out, err := s.EnqueueBatch(ctx, []model.EnrichmentJob{job})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (s *SQLiteStore) EnqueueBatch(ctx context.Context, jobs []model.EnrichmentJob) ([]model.EnrichmentJob, error) {
	prepared, err := prepareJobs(jobs, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if len(prepared) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin enqueue")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO enrichment_jobs
		(id, tenant_id, scope_id, group_id, kind, address, lat, lng, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare enqueue")
	}
	defer stmt.Close() //nolint:errcheck

	for _, j := range prepared {
		if _, err := stmt.ExecContext(ctx,
			j.ID, j.TenantID, j.ScopeID, j.GroupID, string(j.Kind), j.Address, j.Lat, j.Lng,
			string(j.Status), j.CreatedAt, j.UpdatedAt,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert job %s", j.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit enqueue")
	}
	return prepared, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.EnrichmentJob, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM enrichment_jobs WHERE id = ?", id)
	j, err := scanSQLiteJob(row)
	if errors.Is(err, ErrJobNotFound) {
		return nil, eris.Wrapf(ErrJobNotFound, "sqlite: get job %s", id)
	}
	return j, err
}

func (s *SQLiteStore) CountByStatus(ctx context.Context, f JobFilter) (map[model.JobStatus]int, error) {
	where, args := f.where(sqlitePlaceholder)
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM enrichment_jobs"+where+" GROUP BY status", args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count jobs")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[model.JobStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.JobStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate counts")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrJobNotFound, "job %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row scannable) (*model.EnrichmentJob, error) {
	var (
		j              model.EnrichmentJob
		kind, status   string
		lat, lng       sql.NullFloat64
		result, errMsg sql.NullString
	)
	err := row.Scan(&j.ID, &j.TenantID, &j.ScopeID, &j.GroupID, &kind, &j.Address, &lat, &lng,
		&status, &result, &errMsg, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	j.Kind = model.JobKind(kind)
	j.Status = model.JobStatus(status)
	if lat.Valid {
		j.Lat = &lat.Float64
	}
	if lng.Valid {
		j.Lng = &lng.Float64
	}
	if result.Valid {
		j.Result = json.RawMessage(result.String)
	}
	j.Error = errMsg.String
	return &j, nil
}
