// Package provider defines the interfaces and jurisdiction registry for
// waterfall data providers.
package provider

import (
	"context"

	"github.com/sells-group/parcel-resolver/internal/model"
)

// PropertyProvider resolves an address or point to a parcel record.
// Jurisdiction adapters always return a non-nil result; fallback providers
// return nil when they have no data.
type PropertyProvider interface {
	// Name returns the source identifier recorded on results.
	Name() string
	// Lookup resolves in. It must not panic and reports problems through the
	// result's diagnostic rather than an error.
	Lookup(ctx context.Context, in model.LookupInput) *model.LookupResult
}

// JurisdictionProvider is a PropertyProvider bound to one jurisdiction.
type JurisdictionProvider interface {
	PropertyProvider
	// Jurisdiction returns the human-readable jurisdiction name.
	Jurisdiction() string
}

// PersonProvider enriches a person with contact data.
type PersonProvider interface {
	// LookupPerson returns nil with no error when there is no match or the
	// provider is not configured.
	LookupPerson(ctx context.Context, in model.PersonInput) (*model.PersonEnrichmentResult, error)
}
