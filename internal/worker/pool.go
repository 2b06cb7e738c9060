// Package worker drains queued enrichment jobs with a bounded pool of
// workers sharing a single cursor over the fetched batch.
package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/parcel-resolver/internal/model"
	"github.com/sells-group/parcel-resolver/internal/resilience"
	"github.com/sells-group/parcel-resolver/internal/store"
)

// Queue is the slice of the job store the pool needs.
type Queue interface {
	ListQueued(ctx context.Context, f store.JobFilter, limit int) ([]model.EnrichmentJob, error)
	MarkRunning(ctx context.Context, id string) (bool, error)
	MarkDone(ctx context.Context, id string, result json.RawMessage) error
	MarkError(ctx context.Context, id string, msg string) error
}

// Handler processes one job and returns a JSON-serializable result.
type Handler func(ctx context.Context, job model.EnrichmentJob) (any, error)

// Limits bounds caller-supplied options.
type Limits struct {
	MaxConcurrency int
	MaxTake        int
}

// DefaultLimits returns the production bounds.
func DefaultLimits() Limits {
	return Limits{MaxConcurrency: 10, MaxTake: 500}
}

// Options control one Run.
type Options struct {
	Concurrency int
	Take        int
	Timeout     time.Duration // per job
}

// DefaultOptions returns the defaults callers use for options they leave
// unset.
func DefaultOptions() Options {
	return Options{Concurrency: 4, Take: 100, Timeout: 30 * time.Second}
}

// Clamp bounds o to [1, limits]. A zero Take or Timeout takes the default;
// a zero Concurrency runs a single worker.
func (o Options) Clamp(l Limits) Options {
	def := DefaultOptions()
	if o.Take == 0 {
		o.Take = def.Take
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	o.Concurrency = clamp(o.Concurrency, 1, l.MaxConcurrency)
	o.Take = clamp(o.Take, 1, l.MaxTake)
	return o
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Summary reports the outcome of one Run.
type Summary struct {
	Fetched   int `json:"fetched"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Pool runs handlers over queued jobs.
type Pool struct {
	queue    Queue
	handlers map[model.JobKind]Handler
	limits   Limits
}

// NewPool creates a pool over q. Jobs whose kind has no handler are marked
// as errors.
func NewPool(q Queue, handlers map[model.JobKind]Handler, limits Limits) *Pool {
	if limits.MaxConcurrency <= 0 || limits.MaxTake <= 0 {
		limits = DefaultLimits()
	}
	return &Pool{queue: q, handlers: handlers, limits: limits}
}

// Run fetches up to Take queued jobs matching f and processes them with
// exactly Concurrency workers. A failing job never aborts its siblings.
// Processed counts jobs that reached a terminal state. An empty queue returns
// a zero Summary and no error.
func (p *Pool) Run(ctx context.Context, f store.JobFilter, opts Options) (Summary, error) {
	opts = opts.Clamp(p.limits)

	jobs, err := p.queue.ListQueued(ctx, f, opts.Take)
	if err != nil {
		return Summary{}, eris.Wrap(err, "worker: list queued")
	}
	if len(jobs) == 0 {
		zap.L().Info("worker: queue empty")
		return Summary{}, nil
	}

	zap.L().Info("worker: processing batch",
		zap.Int("jobs", len(jobs)),
		zap.Int("concurrency", opts.Concurrency),
		zap.Duration("timeout", opts.Timeout),
	)

	var (
		cursor                                atomic.Int64
		processed, succeeded, failed, skipped atomic.Int64
	)

	var g errgroup.Group
	for w := 0; w < opts.Concurrency; w++ {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1)) - 1
				if i >= len(jobs) || ctx.Err() != nil {
					return nil
				}
				switch p.process(ctx, jobs[i], opts.Timeout) {
				case outcomeDone:
					processed.Add(1)
					succeeded.Add(1)
				case outcomeError:
					processed.Add(1)
					failed.Add(1)
				case outcomeSkipped:
					skipped.Add(1)
				}
			}
		})
	}
	_ = g.Wait()

	s := Summary{
		Fetched:   len(jobs),
		Processed: int(processed.Load()),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
	zap.L().Info("worker: batch complete",
		zap.Int("processed", s.Processed),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("failed", s.Failed),
		zap.Int("skipped", s.Skipped),
	)
	return s, ctx.Err()
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDone
	outcomeError
)

// statusWriteTimeout bounds the terminal status write of a claimed job.
const statusWriteTimeout = 10 * time.Second

// process claims and runs one job. Once claimed, the terminal status is
// written on a context detached from ctx, so a cancelled run or an expired
// job deadline still leaves the job done or error rather than running.
func (p *Pool) process(ctx context.Context, job model.EnrichmentJob, timeout time.Duration) outcome {
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))

	claimed, err := p.queue.MarkRunning(ctx, job.ID)
	if err != nil {
		log.Error("worker: mark running failed", zap.Error(err))
		return outcomeSkipped
	}
	if !claimed {
		log.Debug("worker: job already claimed")
		return outcomeSkipped
	}

	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	result, runErr := p.runHandler(ctx, job, timeout)
	var payload json.RawMessage
	if runErr == nil {
		payload, runErr = json.Marshal(result)
		runErr = eris.Wrap(runErr, "worker: marshal result")
	}

	if runErr != nil {
		log.Error("worker: job failed",
			zap.String("error_type", resilience.ClassifyError(runErr)),
			zap.Error(runErr),
		)
		if err := p.queue.MarkError(statusCtx, job.ID, runErr.Error()); err != nil {
			log.Error("worker: mark error failed", zap.Error(err))
			return outcomeSkipped
		}
		return outcomeError
	}

	if err := p.queue.MarkDone(statusCtx, job.ID, payload); err != nil {
		log.Error("worker: mark done failed", zap.Error(err))
		return outcomeSkipped
	}
	log.Debug("worker: job done")
	return outcomeDone
}

func (p *Pool) runHandler(ctx context.Context, job model.EnrichmentJob, timeout time.Duration) (result any, err error) {
	h, ok := p.handlers[job.Kind]
	if !ok {
		return nil, eris.Errorf("worker: no handler for kind %q", job.Kind)
	}

	jctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("worker: handler panicked: %v", r)
		}
	}()

	result, err = h(jctx, job)
	if err == nil && jctx.Err() != nil {
		err = eris.Wrapf(jctx.Err(), "worker: job exceeded %s", timeout)
	}
	return result, err
}
