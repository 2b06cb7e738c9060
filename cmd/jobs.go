package main

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-resolver/internal/fetcher"
	"github.com/sells-group/parcel-resolver/internal/model"
	"github.com/sells-group/parcel-resolver/internal/store"
)

var jobsFilter store.JobFilter

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage the enrichment job queue",
}

var jobsImportCmd = &cobra.Command{
	Use:   "import <file.csv|file.xlsx>",
	Short: "Enqueue jobs from a CSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := readTable(args[0])
		if err != nil {
			return err
		}
		jobs, err := parseJobRows(rows, jobsFilter)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			zap.L().Info("no rows to import", zap.String("file", args[0]))
			return nil
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		created, err := st.EnqueueBatch(cmd.Context(), jobs)
		if err != nil {
			return eris.Wrap(err, "enqueue jobs")
		}
		zap.L().Info("import complete", zap.Int("enqueued", len(created)), zap.String("file", args[0]))
		return writeJSON(cmd.OutOrStdout(), map[string]int{"enqueued": len(created)})
	},
}

var jobsExportCmd = &cobra.Command{
	Use:   "export <out.xlsx>",
	Short: "Write jobs with their status and result to XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		jobs, err := listAll(cmd.Context(), st, jobsFilter)
		if err != nil {
			return err
		}
		if err := fetcher.WriteXLSX(args[0], "jobs", exportHeader, jobRows(jobs)); err != nil {
			return err
		}
		zap.L().Info("export complete", zap.Int("jobs", len(jobs)), zap.String("file", args[0]))
		return nil
	},
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show job counts by status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.CountByStatus(cmd.Context(), jobsFilter)
		if err != nil {
			return eris.Wrap(err, "count jobs")
		}
		out := make(map[model.JobStatus]int, 4)
		for _, s := range []model.JobStatus{model.JobStatusQueued, model.JobStatusRunning, model.JobStatusDone, model.JobStatusError} {
			out[s] = counts[s]
		}
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

// openStore validates store config, opens it and applies the schema.
func openStore(ctx context.Context) (store.JobStore, error) {
	if err := cfg.Validate("jobs"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func readTable(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return fetcher.ReadCSVFile(path)
	case ".xlsx":
		return fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	}
	return nil, eris.Errorf("unsupported file type %q (want .csv or .xlsx)", filepath.Ext(path))
}

// parseJobRows maps a header row plus data rows to jobs. Recognized columns:
// address, lat, lng, kind, tenant_id, scope_id, group_id. Filter fields fill
// empty scoping columns. Blank rows are skipped.
func parseJobRows(rows [][]string, defaults store.JobFilter) ([]model.EnrichmentJob, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	col := make(map[string]int)
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	_, hasAddr := col["address"]
	_, hasLat := col["lat"]
	_, hasLng := col["lng"]
	if !hasAddr && !(hasLat && hasLng) {
		return nil, eris.New("import: header needs an address column or lat and lng columns")
	}

	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	or := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}

	var jobs []model.EnrichmentJob
	for n, row := range rows[1:] {
		line := n + 2
		job := model.EnrichmentJob{
			TenantID: or(get(row, "tenant_id"), defaults.TenantID),
			ScopeID:  or(get(row, "scope_id"), defaults.ScopeID),
			GroupID:  or(get(row, "group_id"), defaults.GroupID),
			Kind:     model.JobKind(or(strings.ToLower(get(row, "kind")), string(defaults.Kind))),
			Address:  get(row, "address"),
		}

		lat, lng := get(row, "lat"), get(row, "lng")
		if job.Address == "" && lat == "" && lng == "" {
			continue
		}
		if lat != "" || lng != "" {
			la, err := strconv.ParseFloat(lat, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "import: row %d: lat", line)
			}
			lo, err := strconv.ParseFloat(lng, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "import: row %d: lng", line)
			}
			job.Lat, job.Lng = &la, &lo
		}
		if job.Kind != "" && !job.Kind.Valid() {
			return nil, eris.Errorf("import: row %d: unknown kind %q", line, job.Kind)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

var exportHeader = []string{"id", "tenant_id", "scope_id", "group_id", "kind", "address", "lat", "lng", "status", "error", "result", "updated_at"}

func jobRows(jobs []model.EnrichmentJob) [][]string {
	f := func(p *float64) string {
		if p == nil {
			return ""
		}
		return strconv.FormatFloat(*p, 'f', -1, 64)
	}
	rows := make([][]string, len(jobs))
	for i, j := range jobs {
		rows[i] = []string{
			j.ID, j.TenantID, j.ScopeID, j.GroupID, string(j.Kind), j.Address,
			f(j.Lat), f(j.Lng), string(j.Status), j.Error, string(j.Result),
			j.UpdatedAt.UTC().Format(time.RFC3339),
		}
	}
	return rows
}

const exportPage = 500

// listAll pages through every job matching f.
func listAll(ctx context.Context, st store.JobStore, f store.JobFilter) ([]model.EnrichmentJob, error) {
	var all []model.EnrichmentJob
	for offset := 0; ; offset += exportPage {
		page, err := st.List(ctx, f, exportPage, offset)
		if err != nil {
			return nil, eris.Wrap(err, "list jobs")
		}
		all = append(all, page...)
		if len(page) < exportPage {
			return all, nil
		}
	}
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the job queue schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("job store migrated", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	pf := jobsCmd.PersistentFlags()
	pf.StringVar(&jobsFilter.TenantID, "tenant", "", "tenant id (filter, or default for import)")
	pf.StringVar(&jobsFilter.ScopeID, "scope", "", "scope id (filter, or default for import)")
	pf.StringVar(&jobsFilter.GroupID, "group", "", "group id (filter, or default for import)")
	pf.StringVar((*string)(&jobsFilter.Kind), "kind", "", "job kind (filter, or default for import)")
	jobsExportCmd.Flags().StringVar((*string)(&jobsFilter.Status), "status", "", "only export jobs in this status")

	jobsCmd.AddCommand(jobsImportCmd, jobsExportCmd, jobsStatusCmd)
	rootCmd.AddCommand(jobsCmd, migrateCmd)
}
