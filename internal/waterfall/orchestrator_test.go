package waterfall

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-resolver/internal/model"
	"github.com/sells-group/parcel-resolver/internal/waterfall/provider"
)

func strp(s string) *string   { return &s }
func fltp(f float64) *float64 { return &f }
func boolp(b bool) *bool      { return &b }

type stubProvider struct {
	name         string
	jurisdiction string
	result       *model.LookupResult
	panics       bool
	calls        atomic.Int32
	sawDeadline  bool
}

func (s *stubProvider) Name() string         { return s.name }
func (s *stubProvider) Jurisdiction() string { return s.jurisdiction }
func (s *stubProvider) Lookup(ctx context.Context, _ model.LookupInput) *model.LookupResult {
	s.calls.Add(1)
	_, s.sawDeadline = ctx.Deadline()
	if s.panics {
		panic("boom")
	}
	if s.result == nil {
		return nil
	}
	cp := *s.result
	return &cp
}

type stubLocator map[[2]float64]string

func (l stubLocator) Locate(lat, lng float64) (string, bool) {
	name, ok := l[[2]float64{lat, lng}]
	return name, ok
}

func newRegistry(t *testing.T, ps ...provider.JurisdictionProvider) *provider.Registry {
	t.Helper()
	r, err := provider.NewRegistry(ps...)
	require.NoError(t, err)
	return r
}

func TestResolve_HighConfidenceSkipsFallback(t *testing.T) {
	gis := &stubProvider{name: "gis_st_lucie", jurisdiction: "St. Lucie County", result: &model.LookupResult{
		Source:              "gis_st_lucie",
		ConfidenceScore:     75,
		OwnerName:           strp("DOE JANE"),
		OwnerMailingAddress: strp("PO BOX 1"),
	}}
	fb := &stubProvider{name: "attom"}

	o := NewOrchestrator(newRegistry(t, gis), WithFallback(fb))
	r := o.Resolve(context.Background(), model.LookupInput{Address: "1 Main St", Jurisdiction: "saint lucie"})

	assert.Equal(t, "gis_st_lucie", r.Source)
	assert.Equal(t, 75, r.ConfidenceScore)
	assert.Equal(t, int32(0), fb.calls.Load())
}

func TestResolve_MissingMailingEscalates(t *testing.T) {
	gis := &stubProvider{name: "gis_st_lucie", jurisdiction: "St. Lucie County", result: &model.LookupResult{
		Source:          "gis_st_lucie",
		ConfidenceScore: 75,
		OwnerName:       strp("DOE JANE"),
		Provenance:      map[model.Field]string{model.FieldOwnerName: "gis_st_lucie"},
	}}
	fb := &stubProvider{name: "attom", result: &model.LookupResult{
		Source:              "attom",
		ConfidenceScore:     65,
		OwnerName:           strp("JANE DOE"),
		OwnerMailingAddress: strp("PO BOX 12 FORT PIERCE FL"),
		AssessedValue:       fltp(245100),
	}}

	o := NewOrchestrator(newRegistry(t, gis), WithFallback(fb))
	r := o.Resolve(context.Background(), model.LookupInput{Address: "1 Main St", Jurisdiction: "St. Lucie County"})

	assert.Equal(t, int32(1), fb.calls.Load())
	assert.True(t, fb.sawDeadline)
	assert.Equal(t, "DOE JANE", *r.OwnerName)
	assert.Equal(t, "PO BOX 12 FORT PIERCE FL", *r.OwnerMailingAddress)
	assert.Equal(t, 75, r.ConfidenceScore)

	want := map[model.Field]string{
		model.FieldOwnerName:           "gis_st_lucie",
		model.FieldOwnerMailingAddress: "attom",
		model.FieldAssessedValue:       "attom",
	}
	if diff := cmp.Diff(want, r.Provenance); diff != "" {
		t.Errorf("provenance mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "attom+gis_st_lucie", r.Source)
}

func TestResolve_NoAdapterUsesFallback(t *testing.T) {
	fb := &stubProvider{name: "attom", result: &model.LookupResult{
		Source: "attom", ConfidenceScore: 65, OwnerName: strp("X"),
	}}
	o := NewOrchestrator(newRegistry(t), WithFallback(fb))
	r := o.Resolve(context.Background(), model.LookupInput{Address: "1 Main St", Jurisdiction: "Miami-Dade County"})

	assert.Equal(t, "attom", r.Source)
	assert.Equal(t, 65, r.ConfidenceScore)
}

func TestResolve_NothingAvailable(t *testing.T) {
	o := NewOrchestrator(newRegistry(t), WithFallback(&stubProvider{name: "attom"}))
	r := o.Resolve(context.Background(), model.LookupInput{Address: "1 Main St"})

	require.NotNil(t, r)
	assert.Equal(t, SourceNone, r.Source)
	assert.Equal(t, 0, r.ConfidenceScore)
	assert.Empty(t, r.PopulatedFields())
}

func TestResolve_NoFallbackReturnsWeakPrimary(t *testing.T) {
	gis := &stubProvider{name: "gis_martin", jurisdiction: "Martin", result: &model.LookupResult{
		Source: "gis_martin", ConfidenceScore: 40, ParcelID: strp("1"),
	}}
	o := NewOrchestrator(newRegistry(t, gis))
	r := o.Resolve(context.Background(), model.LookupInput{Address: "1 Main St", Jurisdiction: "Martin County"})
	assert.Equal(t, "gis_martin", r.Source)
	assert.Equal(t, 40, r.ConfidenceScore)
}

func TestResolve_LocatorFillsJurisdiction(t *testing.T) {
	gis := &stubProvider{name: "gis_martin", jurisdiction: "Martin County", result: &model.LookupResult{
		Source: "gis_martin", ConfidenceScore: 75, OwnerName: strp("A"), OwnerMailingAddress: strp("B"),
	}}
	lat, lng := 27.1, -80.2
	o := NewOrchestrator(newRegistry(t, gis), WithLocator(stubLocator{{lat, lng}: "Martin County"}))
	r := o.Resolve(context.Background(), model.LookupInput{Lat: &lat, Lng: &lng})

	assert.Equal(t, "gis_martin", r.Source)
	assert.Equal(t, int32(1), gis.calls.Load())
}

func TestResolve_PanickingProvider(t *testing.T) {
	gis := &stubProvider{name: "gis_martin", jurisdiction: "Martin County", panics: true}
	o := NewOrchestrator(newRegistry(t, gis))
	r := o.Resolve(context.Background(), model.LookupInput{Address: "1", Jurisdiction: "Martin"})
	assert.Equal(t, 0, r.ConfidenceScore)
	assert.Equal(t, "provider panicked", r.Diagnostic)
}

func TestResolve_InputTimeoutApplied(t *testing.T) {
	fb := &stubProvider{name: "attom"}
	o := NewOrchestrator(newRegistry(t), WithFallback(fb), WithPolicy(Policy{Threshold: 70}))
	o.Resolve(context.Background(), model.LookupInput{Address: "1", Timeout: time.Second})
	assert.True(t, fb.sawDeadline)
}

func TestPolicy_ShouldEscalate(t *testing.T) {
	p := DefaultPolicy()
	full := &model.LookupResult{ConfidenceScore: 70, OwnerName: strp("A"), OwnerMailingAddress: strp("B")}

	assert.True(t, p.ShouldEscalate(nil))
	assert.False(t, p.ShouldEscalate(full))

	low := *full
	low.ConfidenceScore = 69
	assert.True(t, p.ShouldEscalate(&low))

	noOwner := *full
	noOwner.OwnerName = nil
	assert.True(t, p.ShouldEscalate(&noOwner))
}

func TestMerge_NeverOverwritesAuthoritative(t *testing.T) {
	primary := &model.LookupResult{Source: "gis", ConfidenceScore: 40, OwnerName: strp("PRIMARY"), Homestead: boolp(false)}
	secondary := &model.LookupResult{Source: "attom", ConfidenceScore: 90, OwnerName: strp("SECONDARY"), Homestead: boolp(true), ParcelID: strp("P1")}

	m := Merge(primary, secondary)
	assert.Equal(t, "PRIMARY", *m.OwnerName)
	assert.False(t, *m.Homestead)
	assert.Equal(t, "P1", *m.ParcelID)
	assert.Equal(t, 90, m.ConfidenceScore)
}

func TestMerge_HigherConfidenceWinsAmongOthers(t *testing.T) {
	a := &model.LookupResult{Source: "a", ConfidenceScore: 30, MortgageLender: strp("LOW")}
	b := &model.LookupResult{Source: "b", ConfidenceScore: 60, MortgageLender: strp("HIGH")}
	m := Merge(nil, a, b)
	assert.Equal(t, "HIGH", *m.MortgageLender)
	assert.Equal(t, "b", m.Provenance[model.FieldMortgageLender])

	m = Merge(nil, b, a)
	assert.Equal(t, "HIGH", *m.MortgageLender)
}

func TestMerge_AllNil(t *testing.T) {
	assert.Nil(t, Merge(nil, nil))
}

func TestMerge_CollectsDiagnostics(t *testing.T) {
	m := Merge(model.EmptyResult("gis", "circuit open"), model.EmptyResult("attom", "not configured"))
	assert.Equal(t, "gis: circuit open; attom: not configured", m.Diagnostic)
	assert.Equal(t, "gis", m.Source)
	assert.Nil(t, m.Provenance)
}
