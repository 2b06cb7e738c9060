package gis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/parcel-resolver/internal/address"
	"github.com/sells-group/parcel-resolver/internal/model"
	"github.com/sells-group/parcel-resolver/internal/resilience"
)

const (
	confidenceWithOwner    = 75
	confidenceWithoutOwner = 40
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithHTTPClient sets the HTTP client used for queries.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Adapter) { a.http = hc }
}

// WithSettings overrides the default runtime settings.
func WithSettings(s Settings) Option {
	return func(a *Adapter) { a.settings = s }
}

// Adapter queries one jurisdiction's ArcGIS parcel layer.
type Adapter struct {
	cfg      AdapterConfig
	settings Settings
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
}

// NewAdapter validates cfg and builds an adapter for it.
func NewAdapter(cfg AdapterConfig, opts ...Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Adapter{
		cfg:      cfg,
		settings: DefaultSettings(),
		http:     &http.Client{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.settings.MaxCandidates <= 0 {
		a.settings.MaxCandidates = 3
	}
	if a.settings.Timeout <= 0 {
		a.settings.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if a.settings.RateLimitRPS > 0 {
		limit = rate.Limit(a.settings.RateLimitRPS)
	}
	a.limiter = rate.NewLimiter(limit, 1)
	a.breaker = resilience.NewCircuitBreaker(a.settings.BreakerFailures, a.settings.BreakerReset)
	return a, nil
}

// Name returns the adapter's source identifier.
func (a *Adapter) Name() string { return a.cfg.ID }

// Jurisdiction returns the jurisdiction name this adapter serves.
func (a *Adapter) Jurisdiction() string { return a.cfg.Jurisdiction }

// Lookup resolves in against the parcel layer. It never returns nil and never
// fails: transport problems and empty searches yield a zero-confidence result
// with a diagnostic.
func (a *Adapter) Lookup(ctx context.Context, in model.LookupInput) *model.LookupResult {
	normalized := address.Normalize(in.Address)

	var (
		q    url.Values
		diag string
	)
	switch {
	case normalized != "":
		q, diag = a.addressQuery(normalized)
	case in.HasPoint():
		var err error
		q, diag, err = a.pointQuery(*in.Lat, *in.Lng)
		if err != nil {
			return model.EmptyResult(a.cfg.ID, "encode point: "+err.Error())
		}
	default:
		return model.EmptyResult(a.cfg.ID, "no address or coordinates")
	}

	if err := a.breaker.Allow(); err != nil {
		return model.EmptyResult(a.cfg.ID, err.Error())
	}

	timeout := a.settings.Timeout
	if in.Timeout > 0 && in.Timeout < timeout {
		timeout = in.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	features, err := a.query(ctx, q)
	a.breaker.Record(err)
	if err != nil {
		zap.L().Warn("gis: query failed",
			zap.String("adapter", a.cfg.ID),
			zap.String("query", diag),
			zap.Error(err),
		)
		return model.EmptyResult(a.cfg.ID, err.Error())
	}
	if len(features) == 0 {
		return model.EmptyResult(a.cfg.ID, "no features for "+diag)
	}
	return a.mapFeature(features[0])
}

type queryResponse struct {
	Features []struct {
		Attributes map[string]any `json:"attributes"`
	} `json:"features"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) query(ctx context.Context, q url.Values) ([]map[string]any, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "gis: rate limiter")
	}

	endpoint := strings.TrimSuffix(a.cfg.Endpoint, "/") + "/query?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "gis: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "gis: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Errorf("gis: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var qr queryResponse
	if err := dec.Decode(&qr); err != nil {
		return nil, eris.Wrap(err, "gis: decode response")
	}
	if qr.Error != nil {
		return nil, eris.Errorf("gis: service error %d: %s", qr.Error.Code, qr.Error.Message)
	}

	out := make([]map[string]any, 0, len(qr.Features))
	for _, f := range qr.Features {
		if f.Attributes != nil {
			out = append(out, f.Attributes)
		}
	}
	return out, nil
}

// mapFeature applies the field mappings to the first candidate.
func (a *Adapter) mapFeature(attrs map[string]any) *model.LookupResult {
	r := &model.LookupResult{
		Source:     a.cfg.ID,
		Raw:        attrs,
		Provenance: make(map[model.Field]string),
	}
	for _, fm := range a.cfg.Fields {
		raw, ok := attrs[fm.Source]
		if !ok || isEmpty(raw) {
			continue
		}
		if r.Has(fm.Target) {
			continue
		}
		v, ok := fm.Transform.Apply(raw)
		if !ok {
			continue
		}
		if r.Set(fm.Target, v) {
			r.Provenance[fm.Target] = a.cfg.ID
		}
	}

	if r.Has(model.FieldOwnerName) {
		r.ConfidenceScore = confidenceWithOwner
	} else {
		r.ConfidenceScore = confidenceWithoutOwner
		r.Diagnostic = fmt.Sprintf("matched %s without an owner name", a.cfg.SearchField)
	}
	return r
}
