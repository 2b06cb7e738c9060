package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-resolver/internal/store"
	"github.com/sells-group/parcel-resolver/internal/worker"
)

// batchRequest is the batch driver input. Omitted options take the configured
// defaults; explicit values, zero included, go to the pool, which clamps them.
type batchRequest struct {
	ScopeIDs    store.JobFilter `json:"scope_ids"`
	Concurrency *int            `json:"concurrency,omitempty"`
	Take        *int            `json:"take,omitempty"`
	TimeoutMs   *int            `json:"timeout_ms,omitempty"`
}

// batchResponse is the batch driver output. Per-job failures are visible in
// the job store, never here.
type batchResponse struct {
	Success   bool   `json:"success"`
	Processed int    `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// batchRunner is the part of *worker.Pool the driver needs.
type batchRunner interface {
	Run(ctx context.Context, f store.JobFilter, opts worker.Options) (worker.Summary, error)
}

// runBatch drains one batch. Status in the filter is ignored; only queued
// jobs are ever taken.
func runBatch(ctx context.Context, r batchRunner, req batchRequest) (batchResponse, error) {
	opts := worker.Options{
		Concurrency: cfg.Batch.Concurrency,
		Take:        cfg.Batch.Take,
		Timeout:     cfg.Batch.Timeout(),
	}
	if req.Concurrency != nil {
		opts.Concurrency = *req.Concurrency
	}
	if req.Take != nil {
		opts.Take = *req.Take
	}
	if req.TimeoutMs != nil {
		opts.Timeout = time.Duration(*req.TimeoutMs) * time.Millisecond
	}

	f := req.ScopeIDs
	f.Status = ""
	if f.Kind != "" && !f.Kind.Valid() {
		return batchResponse{}, eris.Errorf("unknown job kind %q", f.Kind)
	}

	s, err := r.Run(ctx, f, opts)
	if err != nil {
		return batchResponse{}, err
	}
	if s.Fetched == 0 {
		return batchResponse{Success: true, Processed: 0, Message: "queue empty"}, nil
	}
	return batchResponse{Success: true, Processed: s.Processed}, nil
}

var (
	batchReq         batchRequest
	batchConcurrency int
	batchTake        int
	batchTimeoutMs   int
)

// requestFromFlags copies the option flags the user actually set into req.
func requestFromFlags(cmd *cobra.Command, req batchRequest) batchRequest {
	f := cmd.Flags()
	if f.Changed("concurrency") {
		req.Concurrency = &batchConcurrency
	}
	if f.Changed("take") {
		req.Take = &batchTake
	}
	if f.Changed("timeout-ms") {
		req.TimeoutMs = &batchTimeoutMs
	}
	return req
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process queued enrichment jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "batch", true)
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := runBatch(ctx, env.Pool, requestFromFlags(cmd, batchReq))
		if err != nil {
			return eris.Wrap(err, "batch")
		}
		zap.L().Info("batch finished", zap.Int("processed", resp.Processed))
		return writeJSON(cmd.OutOrStdout(), resp)
	},
}

func init() {
	f := batchCmd.Flags()
	f.StringVar(&batchReq.ScopeIDs.TenantID, "tenant", "", "tenant id filter")
	f.StringVar(&batchReq.ScopeIDs.ScopeID, "scope", "", "scope (batch or event) id filter")
	f.StringVar(&batchReq.ScopeIDs.GroupID, "group", "", "group (polygon) id filter")
	f.StringVar((*string)(&batchReq.ScopeIDs.Kind), "kind", "", "job kind filter (property|skiptrace)")
	f.IntVar(&batchConcurrency, "concurrency", 0, "workers (default from config, max batch.max_concurrency)")
	f.IntVar(&batchTake, "take", 0, "max jobs to fetch (default from config, max batch.max_take)")
	f.IntVar(&batchTimeoutMs, "timeout-ms", 0, "per-job timeout in milliseconds (default from config)")
	rootCmd.AddCommand(batchCmd)
}
