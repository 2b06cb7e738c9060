// Package waterfall resolves property lookups by routing to a jurisdiction
// adapter and escalating to a fallback provider when the result is weak.
package waterfall

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/parcel-resolver/internal/model"
	"github.com/sells-group/parcel-resolver/internal/waterfall/provider"
)

// SourceNone is the source recorded when no provider produced anything.
const SourceNone = "none"

// Locator maps a coordinate to a jurisdiction name.
type Locator interface {
	Locate(lat, lng float64) (string, bool)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFallback sets the provider consulted on escalation.
func WithFallback(p provider.PropertyProvider) Option {
	return func(o *Orchestrator) { o.fallback = p }
}

// WithLocator sets the jurisdiction locator used when no hint is given.
func WithLocator(l Locator) Option {
	return func(o *Orchestrator) { o.locator = l }
}

// WithPolicy overrides the escalation policy.
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// Orchestrator runs the jurisdiction-then-fallback waterfall.
type Orchestrator struct {
	registry *provider.Registry
	fallback provider.PropertyProvider
	locator  Locator
	policy   Policy
}

// NewOrchestrator creates an orchestrator over registry.
func NewOrchestrator(registry *provider.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		policy:   DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Resolve returns the best available result for in. It never fails; when no
// provider yields anything the result carries source "none" and a diagnostic.
func (o *Orchestrator) Resolve(ctx context.Context, in model.LookupInput) *model.LookupResult {
	if in.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}

	log := zap.L().With(zap.String("address", in.Address))

	jurisdiction := in.Jurisdiction
	if jurisdiction == "" && in.HasPoint() && o.locator != nil {
		if name, ok := o.locator.Locate(*in.Lat, *in.Lng); ok {
			jurisdiction = name
			log.Debug("waterfall: located jurisdiction", zap.String("jurisdiction", name))
		}
	}

	var primary *model.LookupResult
	if p, ok := o.registry.Resolve(jurisdiction); ok {
		primary = o.safeLookup(ctx, p, in)
		log.Debug("waterfall: jurisdiction result",
			zap.String("source", p.Name()),
			zap.Int("confidence", primary.ConfidenceScore),
		)
	}

	if !o.policy.ShouldEscalate(primary) || o.fallback == nil {
		return finalize(primary)
	}

	log.Debug("waterfall: escalating to fallback", zap.String("fallback", o.fallback.Name()))
	fctx := ctx
	if o.policy.FallbackTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, o.policy.FallbackTimeout)
		defer cancel()
	}
	secondary := o.safeLookup(fctx, o.fallback, in)

	return finalize(Merge(primary, secondary))
}

// safeLookup shields the orchestrator from a misbehaving provider.
func (o *Orchestrator) safeLookup(ctx context.Context, p provider.PropertyProvider, in model.LookupInput) (r *model.LookupResult) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("waterfall: provider panicked",
				zap.String("source", p.Name()),
				zap.Any("panic", rec),
			)
			r = model.EmptyResult(p.Name(), "provider panicked")
		}
	}()
	return p.Lookup(ctx, in)
}

func finalize(r *model.LookupResult) *model.LookupResult {
	if r == nil {
		return model.EmptyResult(SourceNone, "no provider returned data")
	}
	r.ConfidenceScore = model.ClampConfidence(r.ConfidenceScore)
	return r
}
