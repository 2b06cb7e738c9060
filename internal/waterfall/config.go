package waterfall

import (
	"time"

	"github.com/sells-group/parcel-resolver/internal/model"
)

// DefaultEscalationThreshold is the confidence below which a jurisdiction
// result is escalated to the fallback.
const DefaultEscalationThreshold = 70

// Policy decides when a jurisdiction result is good enough to stand alone.
type Policy struct {
	Threshold      int
	RequiredFields []model.Field
	// FallbackTimeout bounds the fallback call. Zero leaves it to the caller's
	// context.
	FallbackTimeout time.Duration
}

// DefaultPolicy escalates below 70 or when owner name or mailing address is
// missing.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:       DefaultEscalationThreshold,
		RequiredFields:  []model.Field{model.FieldOwnerName, model.FieldOwnerMailingAddress},
		FallbackTimeout: 15 * time.Second,
	}
}

// ShouldEscalate reports whether r needs the fallback provider.
func (p Policy) ShouldEscalate(r *model.LookupResult) bool {
	if r == nil || r.ConfidenceScore < p.Threshold {
		return true
	}
	for _, f := range p.RequiredFields {
		if !r.Has(f) {
			return true
		}
	}
	return false
}
