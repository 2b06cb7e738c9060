package main

import (
	"context"
	"net/http"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-resolver/internal/fallback"
	"github.com/sells-group/parcel-resolver/internal/gis"
	"github.com/sells-group/parcel-resolver/internal/jurisdiction"
	"github.com/sells-group/parcel-resolver/internal/model"
	"github.com/sells-group/parcel-resolver/internal/store"
	"github.com/sells-group/parcel-resolver/internal/waterfall"
	"github.com/sells-group/parcel-resolver/internal/waterfall/provider"
	"github.com/sells-group/parcel-resolver/internal/worker"
	"github.com/sells-group/parcel-resolver/pkg/attom"
	"github.com/sells-group/parcel-resolver/pkg/skiptrace"
)

// appEnv holds the wired components shared by the resolve, batch and serve
// commands. Store is nil for commands that never touch the queue.
type appEnv struct {
	Store        store.JobStore
	Orchestrator *waterfall.Orchestrator
	SkipTrace    *skiptrace.Client
	Pool         *worker.Pool
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured job store.
func initStore(ctx context.Context) (store.JobStore, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "parcel.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func gisSettings() gis.Settings {
	return gis.Settings{
		Timeout:         cfg.GIS.Timeout(),
		MaxCandidates:   cfg.GIS.MaxCandidates,
		RateLimitRPS:    cfg.GIS.RateLimitRPS,
		BreakerFailures: cfg.GIS.BreakerFailures,
		BreakerReset:    cfg.GIS.BreakerReset(),
	}
}

// initRegistry builds one GIS adapter per jurisdiction. A jurisdictions file
// overrides or extends the built-in table by adapter id.
func initRegistry() (*provider.Registry, error) {
	cfgs := gis.DefaultJurisdictions()
	if path := cfg.GIS.JurisdictionsFile; path != "" {
		extra, err := gis.LoadJurisdictions(path)
		if err != nil {
			return nil, err
		}
		cfgs = gis.MergeConfigs(cfgs, extra)
	}

	adapters, err := gis.NewAdapters(cfgs, gis.WithSettings(gisSettings()))
	if err != nil {
		return nil, err
	}
	ps := make([]provider.JurisdictionProvider, len(adapters))
	for i, a := range adapters {
		ps[i] = a
	}
	return provider.NewRegistry(ps...)
}

// initFallback returns the paid property-data adapter. Without an API key the
// adapter still exists and answers nil without a network call.
func initFallback() *fallback.ATTOM {
	if cfg.Fallback.APIKey == "" {
		return fallback.NewATTOM(nil)
	}
	client := attom.NewClient(cfg.Fallback.APIKey,
		attom.WithBaseURL(cfg.Fallback.BaseURL),
		attom.WithRateLimit(cfg.Fallback.RateLimitRPS),
		attom.WithHTTPClient(&http.Client{Timeout: cfg.Fallback.Timeout()}),
	)
	return fallback.NewATTOM(client)
}

// initLocator loads county boundaries when a shapefile is configured. Load
// failures disable point-based routing rather than failing the command.
func initLocator() waterfall.Locator {
	path := cfg.Boundaries.Shapefile
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		zap.L().Warn("boundary shapefile not found, point routing disabled", zap.String("path", path))
		return nil
	}
	loc, err := jurisdiction.Load(path, cfg.Boundaries.NameField)
	if err != nil {
		zap.L().Warn("boundary shapefile load failed, point routing disabled", zap.Error(err))
		return nil
	}
	zap.L().Info("county boundaries loaded", zap.Int("counties", loc.Len()))
	return loc
}

// initOrchestrator wires the GIS registry, fallback and locator.
func initOrchestrator() (*waterfall.Orchestrator, error) {
	registry, err := initRegistry()
	if err != nil {
		return nil, err
	}

	policy := waterfall.DefaultPolicy()
	policy.Threshold = cfg.Resolve.EscalationThreshold
	if d := cfg.Resolve.FallbackTimeout(); d > 0 {
		policy.FallbackTimeout = d
	}

	opts := []waterfall.Option{
		waterfall.WithFallback(initFallback()),
		waterfall.WithPolicy(policy),
	}
	if loc := initLocator(); loc != nil {
		opts = append(opts, waterfall.WithLocator(loc))
	}

	zap.L().Debug("resolution waterfall ready", zap.Strings("jurisdictions", keysToStrings(registry.Keys())))
	return waterfall.NewOrchestrator(registry, opts...), nil
}

func keysToStrings(keys []provider.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// initSkipTrace returns the skip-trace client. An empty key yields a client
// that answers nil for every lookup.
func initSkipTrace() *skiptrace.Client {
	return skiptrace.NewClient(cfg.SkipTrace.APIKey,
		skiptrace.WithBaseURL(cfg.SkipTrace.BaseURL),
		skiptrace.WithTimeout(cfg.SkipTrace.Timeout()),
		skiptrace.WithRetries(cfg.SkipTrace.Retries, cfg.SkipTrace.BaseDelay()),
		skiptrace.WithRateLimit(cfg.SkipTrace.RateLimitRPS),
	)
}

// initEnv validates config for mode and wires every component. withStore
// opens and migrates the job store and builds the worker pool over it.
func initEnv(ctx context.Context, mode string, withStore bool) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	orch, err := initOrchestrator()
	if err != nil {
		return nil, err
	}
	env := &appEnv{
		Orchestrator: orch,
		SkipTrace:    initSkipTrace(),
	}
	if !withStore {
		return env, nil
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	env.Store = st
	env.Pool = worker.NewPool(st, map[model.JobKind]worker.Handler{
		model.JobKindProperty:  worker.PropertyHandler(orch),
		model.JobKindSkipTrace: worker.SkipTraceHandler(env.SkipTrace),
	}, worker.Limits{
		MaxConcurrency: cfg.Batch.MaxConcurrency,
		MaxTake:        cfg.Batch.MaxTake,
	})
	return env, nil
}
