// Package config loads application configuration with viper and initializes
// the global zap logger.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	GIS        GISConfig        `yaml:"gis" mapstructure:"gis"`
	Fallback   FallbackConfig   `yaml:"fallback" mapstructure:"fallback"`
	SkipTrace  SkipTraceConfig  `yaml:"skiptrace" mapstructure:"skiptrace"`
	Resolve    ResolveConfig    `yaml:"resolve" mapstructure:"resolve"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Boundaries BoundariesConfig `yaml:"boundaries" mapstructure:"boundaries"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
}

// StoreConfig configures the job queue backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// GISConfig configures the county GIS adapters.
type GISConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxCandidates     int     `yaml:"max_candidates" mapstructure:"max_candidates"`
	RateLimitRPS      float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	JurisdictionsFile string  `yaml:"jurisdictions_file" mapstructure:"jurisdictions_file"`
	BreakerFailures   int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs  int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// FallbackConfig holds the paid property-data service settings.
type FallbackConfig struct {
	APIKey       string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// SkipTraceConfig holds the person-enrichment service settings.
type SkipTraceConfig struct {
	APIKey       string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries      int     `yaml:"retries" mapstructure:"retries"`
	BaseDelayMs  int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// ResolveConfig configures the resolution waterfall.
type ResolveConfig struct {
	EscalationThreshold int `yaml:"escalation_threshold" mapstructure:"escalation_threshold"`
	FallbackTimeoutSecs int `yaml:"fallback_timeout_secs" mapstructure:"fallback_timeout_secs"`
}

// BatchConfig configures the batch worker pool.
type BatchConfig struct {
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
	Take           int `yaml:"take" mapstructure:"take"`
	TimeoutMs      int `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	MaxTake        int `yaml:"max_take" mapstructure:"max_take"`
}

// BoundariesConfig configures the county boundary shapefile.
type BoundariesConfig struct {
	Shapefile string `yaml:"shapefile" mapstructure:"shapefile"`
	SourceURL string `yaml:"source_url" mapstructure:"source_url"`
	Dir       string `yaml:"dir" mapstructure:"dir"`
	NameField string `yaml:"name_field" mapstructure:"name_field"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// Timeout returns the per-adapter GIS timeout.
func (c GISConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// BreakerReset returns how long an open breaker waits before a trial call.
func (c GISConfig) BreakerReset() time.Duration {
	return time.Duration(c.BreakerResetSecs) * time.Second
}

// Timeout returns the fallback service timeout.
func (c FallbackConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Timeout returns the per-attempt skip-trace timeout.
func (c SkipTraceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// BaseDelay returns the first retry backoff.
func (c SkipTraceConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// FallbackTimeout returns the budget for the escalation step.
func (c ResolveConfig) FallbackTimeout() time.Duration {
	return time.Duration(c.FallbackTimeoutSecs) * time.Second
}

// Timeout returns the per-job batch timeout.
func (c BatchConfig) Timeout() time.Duration { return time.Duration(c.TimeoutMs) * time.Millisecond }

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PARCEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "parcel.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("gis.timeout_secs", 10)
	v.SetDefault("gis.max_candidates", 3)
	v.SetDefault("gis.rate_limit_rps", 5)
	v.SetDefault("gis.jurisdictions_file", "")
	v.SetDefault("gis.breaker_failures", 5)
	v.SetDefault("gis.breaker_reset_secs", 60)
	v.SetDefault("fallback.api_key", "")
	v.SetDefault("fallback.base_url", "https://api.gateway.attomdata.com/propertyapi/v1.0.0")
	v.SetDefault("fallback.timeout_secs", 15)
	v.SetDefault("fallback.rate_limit_rps", 2)
	v.SetDefault("skiptrace.api_key", "")
	v.SetDefault("skiptrace.base_url", "https://api.batchdata.com/api/v1")
	v.SetDefault("skiptrace.timeout_secs", 20)
	v.SetDefault("skiptrace.retries", 2)
	v.SetDefault("skiptrace.base_delay_ms", 500)
	v.SetDefault("skiptrace.rate_limit_rps", 2)
	v.SetDefault("resolve.escalation_threshold", 70)
	v.SetDefault("resolve.fallback_timeout_secs", 15)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.take", 100)
	v.SetDefault("batch.timeout_ms", 30000)
	v.SetDefault("batch.max_concurrency", 10)
	v.SetDefault("batch.max_take", 500)
	v.SetDefault("boundaries.shapefile", "")
	v.SetDefault("boundaries.source_url", "https://www2.census.gov/geo/tiger/TIGER2024/COUNTY/tl_2024_us_county.zip")
	v.SetDefault("boundaries.dir", "data/boundaries")
	v.SetDefault("boundaries.name_field", "NAMELSAD")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is one of resolve,
// skiptrace, batch, serve, jobs or boundaries.
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := false
	switch mode {
	case "resolve":
		errs = append(errs, c.validateResolve()...)
	case "skiptrace":
		if c.SkipTrace.Retries < 0 {
			errs = append(errs, "skiptrace.retries must be >= 0")
		}
	case "batch":
		needStore = true
		errs = append(errs, c.validateResolve()...)
		errs = append(errs, c.validateBatch()...)
	case "serve":
		needStore = true
		errs = append(errs, c.validateResolve()...)
		errs = append(errs, c.validateBatch()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "jobs":
		needStore = true
	case "boundaries":
		if c.Boundaries.SourceURL == "" {
			errs = append(errs, "boundaries.source_url is required")
		}
		if c.Boundaries.Dir == "" {
			errs = append(errs, "boundaries.dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if needStore {
		switch c.Store.Driver {
		case "postgres", "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateResolve() []string {
	var errs []string
	if t := c.Resolve.EscalationThreshold; t < 0 || t > 100 {
		errs = append(errs, "resolve.escalation_threshold must be between 0 and 100")
	}
	if c.GIS.TimeoutSecs <= 0 {
		errs = append(errs, "gis.timeout_secs must be > 0")
	}
	if c.GIS.MaxCandidates <= 0 {
		errs = append(errs, "gis.max_candidates must be > 0")
	}
	return errs
}

func (c *Config) validateBatch() []string {
	var errs []string
	if c.Batch.MaxConcurrency < 1 {
		errs = append(errs, "batch.max_concurrency must be >= 1")
	}
	if c.Batch.MaxTake < 1 {
		errs = append(errs, "batch.max_take must be >= 1")
	}
	if c.Batch.TimeoutMs <= 0 {
		errs = append(errs, "batch.timeout_ms must be > 0")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
