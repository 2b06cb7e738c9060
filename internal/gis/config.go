// Package gis implements a provider adapter for county ArcGIS parcel services,
// driven entirely by a declarative per-jurisdiction configuration.
package gis

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-resolver/internal/model"
)

// AdapterConfig binds one jurisdiction's parcel layer to canonical fields.
// It is built once at startup and never mutated.
type AdapterConfig struct {
	ID           string         `yaml:"id"`
	Jurisdiction string         `yaml:"jurisdiction"`
	Endpoint     string         `yaml:"endpoint"` // layer URL, without the trailing /query
	SearchField  string         `yaml:"search_field"`
	OutFields    []string       `yaml:"out_fields"`
	Fields       []FieldMapping `yaml:"fields"`
}

// FieldMapping maps one provider attribute onto a canonical field.
type FieldMapping struct {
	Source    string        `yaml:"source"`
	Target    model.Field   `yaml:"target"`
	Transform TransformKind `yaml:"transform,omitempty"`
}

// Validate checks the config is complete enough to build queries.
func (c AdapterConfig) Validate() error {
	if c.ID == "" {
		return eris.New("gis: adapter id is required")
	}
	if c.Jurisdiction == "" {
		return eris.Errorf("gis: %s: jurisdiction is required", c.ID)
	}
	if !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return eris.Errorf("gis: %s: endpoint must be an http(s) URL", c.ID)
	}
	if c.SearchField == "" {
		return eris.Errorf("gis: %s: search_field is required", c.ID)
	}
	for _, fm := range c.Fields {
		if fm.Source == "" {
			return eris.Errorf("gis: %s: field mapping with empty source", c.ID)
		}
		if !fm.Target.Valid() {
			return eris.Errorf("gis: %s: unknown target field %q", c.ID, fm.Target)
		}
		if !fm.Transform.Valid() {
			return eris.Errorf("gis: %s: unknown transform %q", c.ID, fm.Transform)
		}
	}
	return nil
}

// outFields returns the requested attribute list, defaulting to every mapped
// source field.
func (c AdapterConfig) outFields() []string {
	if len(c.OutFields) > 0 {
		return c.OutFields
	}
	seen := make(map[string]bool, len(c.Fields))
	out := make([]string, 0, len(c.Fields))
	for _, fm := range c.Fields {
		if !seen[fm.Source] {
			seen[fm.Source] = true
			out = append(out, fm.Source)
		}
	}
	return out
}

// Settings holds runtime knobs shared by every GIS adapter.
type Settings struct {
	Timeout         time.Duration
	MaxCandidates   int
	RateLimitRPS    float64
	BreakerFailures int
	BreakerReset    time.Duration
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		Timeout:         10 * time.Second,
		MaxCandidates:   3,
		RateLimitRPS:    5,
		BreakerFailures: 5,
		BreakerReset:    time.Minute,
	}
}
