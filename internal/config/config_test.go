package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "parcel.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10*time.Second, cfg.GIS.Timeout())
	assert.Equal(t, 3, cfg.GIS.MaxCandidates)
	assert.InDelta(t, 5.0, cfg.GIS.RateLimitRPS, 0.001)
	assert.Equal(t, 5, cfg.GIS.BreakerFailures)
	assert.Equal(t, time.Minute, cfg.GIS.BreakerReset())
	assert.Empty(t, cfg.Fallback.APIKey)
	assert.Equal(t, 15*time.Second, cfg.Fallback.Timeout())
	assert.Empty(t, cfg.SkipTrace.APIKey)
	assert.Equal(t, 20*time.Second, cfg.SkipTrace.Timeout())
	assert.Equal(t, 2, cfg.SkipTrace.Retries)
	assert.Equal(t, 500*time.Millisecond, cfg.SkipTrace.BaseDelay())
	assert.Equal(t, 70, cfg.Resolve.EscalationThreshold)
	assert.Equal(t, 15*time.Second, cfg.Resolve.FallbackTimeout())
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, 100, cfg.Batch.Take)
	assert.Equal(t, 30*time.Second, cfg.Batch.Timeout())
	assert.Equal(t, 10, cfg.Batch.MaxConcurrency)
	assert.Equal(t, 500, cfg.Batch.MaxTake)
	assert.Equal(t, "NAMELSAD", cfg.Boundaries.NameField)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/parcels
log:
  level: debug
  format: console
gis:
  jurisdictions_file: counties.yaml
batch:
  concurrency: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/parcels", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "counties.yaml", cfg.GIS.JurisdictionsFile)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	// Defaults still apply for unset values
	assert.Equal(t, 100, cfg.Batch.Take)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("PARCEL_STORE_DRIVER", "postgres")
	t.Setenv("PARCEL_LOG_LEVEL", "warn")
	t.Setenv("PARCEL_SKIPTRACE_API_KEY", "st-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "st-key", cfg.SkipTrace.APIKey)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	assert.ErrorContains(t, err, "config: read file")
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.NotNil(t, zap.L())

	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}

func loadedDefaults(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidate_DefaultsPassEveryMode(t *testing.T) {
	cfg := loadedDefaults(t)
	for _, mode := range []string{"resolve", "skiptrace", "batch", "serve", "jobs", "boundaries"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := loadedDefaults(t)
	assert.ErrorContains(t, cfg.Validate("enrich"), "unknown mode")
}

func TestValidate_StoreDriver(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
	assert.Contains(t, err.Error(), "store.database_url is required")

	// resolve never touches the queue
	assert.NoError(t, cfg.Validate("resolve"))
}

func TestValidate_Bounds(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Resolve.EscalationThreshold = 101
	cfg.Batch.MaxConcurrency = 0
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve.escalation_threshold must be between 0 and 100")
	assert.Contains(t, err.Error(), "batch.max_concurrency must be >= 1")
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidate_Boundaries(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Boundaries.SourceURL = ""

	assert.ErrorContains(t, cfg.Validate("boundaries"), "boundaries.source_url is required")
}
