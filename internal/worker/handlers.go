package worker

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-resolver/internal/model"
	"github.com/sells-group/parcel-resolver/internal/waterfall/provider"
)

// Resolver resolves a property lookup. *waterfall.Orchestrator satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, in model.LookupInput) *model.LookupResult
}

// PropertyHandler resolves property jobs through r.
func PropertyHandler(r Resolver) Handler {
	return func(ctx context.Context, job model.EnrichmentJob) (any, error) {
		in := job.LookupInput()
		if strings.TrimSpace(in.Address) == "" && !in.HasPoint() {
			return nil, eris.New("no address or coordinates")
		}
		return r.Resolve(ctx, in), nil
	}
}

// SkipTraceHandler enriches the owner of a job's address through p. A nil
// result is stored as JSON null.
func SkipTraceHandler(p provider.PersonProvider) Handler {
	return func(ctx context.Context, job model.EnrichmentJob) (any, error) {
		if strings.TrimSpace(job.Address) == "" {
			return nil, eris.New("skip trace requires an address")
		}
		res, err := p.LookupPerson(ctx, job.PersonInput())
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}
