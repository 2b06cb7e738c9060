// Package store persists enrichment jobs for the batch worker pool.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-resolver/internal/model"
)

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = eris.New("job not found")

// JobFilter scopes job queries. Empty fields match everything.
type JobFilter struct {
	TenantID string          `json:"tenant_id,omitempty"`
	ScopeID  string          `json:"scope_id,omitempty"`
	GroupID  string          `json:"group_id,omitempty"`
	Kind     model.JobKind   `json:"kind,omitempty"`
	Status   model.JobStatus `json:"status,omitempty"`
}

// JobStore is the persistence interface for enrichment jobs.
type JobStore interface {
	// ListQueued returns up to limit queued jobs matching f in insertion order.
	ListQueued(ctx context.Context, f JobFilter, limit int) ([]model.EnrichmentJob, error)
	// MarkRunning moves a queued job to running. It reports false when the job
	// was no longer queued, so a concurrent invocation can skip it.
	MarkRunning(ctx context.Context, id string) (bool, error)
	MarkDone(ctx context.Context, id string, result json.RawMessage) error
	MarkError(ctx context.Context, id string, msg string) error

	Enqueue(ctx context.Context, job model.EnrichmentJob) (*model.EnrichmentJob, error)
	EnqueueBatch(ctx context.Context, jobs []model.EnrichmentJob) ([]model.EnrichmentJob, error)
	Get(ctx context.Context, id string) (*model.EnrichmentJob, error)
	List(ctx context.Context, f JobFilter, limit, offset int) ([]model.EnrichmentJob, error)
	CountByStatus(ctx context.Context, f JobFilter) (map[model.JobStatus]int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// jobColumns is the select list shared by both stores.
const jobColumns = "id, tenant_id, scope_id, group_id, kind, address, lat, lng, status, result, error, created_at, updated_at"

// where renders f as a SQL predicate using ph to format the n-th placeholder.
func (f JobFilter) where(ph func(n int) string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		clauses = append(clauses, col+" = "+ph(len(args)))
	}
	add("tenant_id", f.TenantID)
	add("scope_id", f.ScopeID)
	add("group_id", f.GroupID)
	add("kind", string(f.Kind))
	add("status", string(f.Status))

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// prepareJobs fills ids, defaults and timestamps on new jobs.
func prepareJobs(jobs []model.EnrichmentJob, now time.Time) ([]model.EnrichmentJob, error) {
	out := make([]model.EnrichmentJob, len(jobs))
	for i, j := range jobs {
		if j.ID == "" {
			j.ID = uuid.New().String()
		}
		if j.Kind == "" {
			j.Kind = model.JobKindProperty
		}
		if !j.Kind.Valid() {
			return nil, eris.Errorf("store: job %d: unknown kind %q", i, j.Kind)
		}
		if strings.TrimSpace(j.Address) == "" && (j.Lat == nil || j.Lng == nil) {
			return nil, eris.Errorf("store: job %d: address or lat/lng is required", i)
		}
		j.Status = model.JobStatusQueued
		j.Result = nil
		j.Error = ""
		j.CreatedAt = now
		j.UpdatedAt = now
		out[i] = j
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
