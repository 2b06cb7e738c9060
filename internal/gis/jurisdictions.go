package gis

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/parcel-resolver/internal/model"
)

// DefaultJurisdictions returns the built-in county parcel layers. Miami-Dade
// is intentionally absent; addresses there resolve through the fallback.
func DefaultJurisdictions() []AdapterConfig {
	return []AdapterConfig{
		{
			ID:           "gis_st_lucie",
			Jurisdiction: "St. Lucie County",
			Endpoint:     "https://services1.arcgis.com/oDRzuf2MGmdEHAbQ/arcgis/rest/services/Parcels/FeatureServer/0",
			SearchField:  "SITE_ADDR",
			Fields: []FieldMapping{
				{Source: "PARCEL_ID", Target: model.FieldParcelID},
				{Source: "OWNER_NAME", Target: model.FieldOwnerName},
				{Source: "MAIL_ADDR", Target: model.FieldOwnerMailingAddress},
				{Source: "SITE_ADDR", Target: model.FieldPropertyAddress},
				{Source: "HMSTD_FLG", Target: model.FieldHomestead, Transform: TransformBool},
				{Source: "ASSESSED_VAL", Target: model.FieldAssessedValue, Transform: TransformPositive},
				{Source: "SALE_DATE", Target: model.FieldLastSaleDate, Transform: TransformEpochDate},
				{Source: "SALE_PRICE", Target: model.FieldLastSaleAmount, Transform: TransformPositive},
			},
		},
		{
			ID:           "gis_martin",
			Jurisdiction: "Martin County",
			Endpoint:     "https://geoweb.martin.fl.us/arcgis/rest/services/Administrative_Areas/Parcels/MapServer/0",
			SearchField:  "SITUS_ADDRESS",
			Fields: []FieldMapping{
				{Source: "PCN", Target: model.FieldParcelID},
				{Source: "OWNER1", Target: model.FieldOwnerName},
				{Source: "MAILING_ADDRESS", Target: model.FieldOwnerMailingAddress},
				{Source: "SITUS_ADDRESS", Target: model.FieldPropertyAddress},
				{Source: "HOMESTEAD", Target: model.FieldHomestead, Transform: TransformBool},
				{Source: "TOTAL_ASSESSED", Target: model.FieldAssessedValue, Transform: TransformPositive},
				{Source: "LAST_SALE_DATE", Target: model.FieldLastSaleDate, Transform: TransformEpochDate},
				{Source: "LAST_SALE_AMT", Target: model.FieldLastSaleAmount, Transform: TransformPositive},
			},
		},
		{
			ID:           "gis_indian_river",
			Jurisdiction: "Indian River County",
			Endpoint:     "https://gis.ircgov.com/arcgis/rest/services/Parcels/MapServer/0",
			SearchField:  "SITEADDR",
			Fields: []FieldMapping{
				{Source: "PIN", Target: model.FieldParcelID},
				{Source: "OWNERNAME", Target: model.FieldOwnerName},
				{Source: "MAILADDR", Target: model.FieldOwnerMailingAddress},
				{Source: "SITEADDR", Target: model.FieldPropertyAddress},
				{Source: "EXEMPT_HX", Target: model.FieldHomestead, Transform: TransformBool},
				{Source: "ASSDVAL", Target: model.FieldAssessedValue, Transform: TransformPositive},
				{Source: "SALEDATE", Target: model.FieldLastSaleDate, Transform: TransformEpochDate},
				{Source: "SALEPRICE", Target: model.FieldLastSaleAmount, Transform: TransformPositive},
			},
		},
	}
}

type jurisdictionsFile struct {
	Jurisdictions []AdapterConfig `yaml:"jurisdictions"`
}

// LoadJurisdictions reads adapter configs from a YAML file.
func LoadJurisdictions(path string) ([]AdapterConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from operator config
	if err != nil {
		return nil, eris.Wrapf(err, "gis: read jurisdictions file %s", path)
	}
	var f jurisdictionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "gis: parse jurisdictions file %s", path)
	}
	for _, c := range f.Jurisdictions {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Jurisdictions, nil
}

// MergeConfigs overlays extra configs onto base. An entry in extra replaces a
// base entry with the same ID.
func MergeConfigs(base, extra []AdapterConfig) []AdapterConfig {
	idx := make(map[string]int, len(base))
	out := make([]AdapterConfig, 0, len(base)+len(extra))
	for _, c := range base {
		idx[c.ID] = len(out)
		out = append(out, c)
	}
	for _, c := range extra {
		if i, ok := idx[c.ID]; ok {
			out[i] = c
			continue
		}
		idx[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}

// NewAdapters builds one adapter per config.
func NewAdapters(cfgs []AdapterConfig, opts ...Option) ([]*Adapter, error) {
	out := make([]*Adapter, 0, len(cfgs))
	for _, c := range cfgs {
		a, err := NewAdapter(c, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
