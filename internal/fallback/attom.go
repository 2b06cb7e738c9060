// Package fallback adapts commercial property data APIs to the waterfall's
// PropertyProvider interface.
package fallback

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-resolver/internal/address"
	"github.com/sells-group/parcel-resolver/internal/model"
	"github.com/sells-group/parcel-resolver/pkg/attom"
)

// Source is the source identifier recorded on ATTOM results.
const Source = "attom"

const (
	confidenceWithOwner    = 65
	confidenceWithoutOwner = 45
)

// ATTOM resolves properties through the ATTOM API.
type ATTOM struct {
	client   attom.Client
	warnOnce sync.Once
}

// NewATTOM wraps client. A nil client yields an adapter that always reports
// no data.
func NewATTOM(client attom.Client) *ATTOM {
	return &ATTOM{client: client}
}

// Name returns the source identifier.
func (a *ATTOM) Name() string { return Source }

// Lookup returns nil when ATTOM is not configured, the input has no street
// address, or ATTOM has no matching property. Transport failures produce a
// zero-confidence result with a diagnostic.
func (a *ATTOM) Lookup(ctx context.Context, in model.LookupInput) *model.LookupResult {
	if a.client == nil {
		a.warnOnce.Do(func() {
			zap.L().Warn("fallback: attom api key not configured, skipping fallback lookups")
		})
		return nil
	}

	address1, address2 := splitAddress(in)
	if address1 == "" {
		return nil
	}

	p, err := a.client.DetailMortgageOwner(ctx, address1, address2)
	if eris.Is(err, attom.ErrNotFound) {
		return nil
	}
	if err != nil {
		zap.L().Warn("fallback: attom lookup failed", zap.String("address", address1), zap.Error(err))
		return model.EmptyResult(Source, err.Error())
	}
	return toResult(p)
}

// splitAddress turns "4510 Sample Dr, Fort Pierce, FL 34950" into the street
// line and the city/state/zip line. Unit segments such as ", Apt 3," are
// dropped from the second line.
func splitAddress(in model.LookupInput) (string, string) {
	parts := strings.Split(in.Address, ",")
	address1 := address.Normalize(parts[0])

	rest := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" || address.IsUnit(p) {
			continue
		}
		rest = append(rest, p)
	}
	address2 := strings.Join(rest, ", ")
	if address2 == "" {
		address2 = strings.TrimSpace(in.State)
	}
	return address1, address2
}

func toResult(p *attom.Property) *model.LookupResult {
	r := &model.LookupResult{
		Source:     Source,
		Provenance: make(map[model.Field]string),
	}
	set := func(f model.Field, v any) {
		if r.Set(f, v) {
			r.Provenance[f] = Source
		}
	}

	set(model.FieldParcelID, p.Identifier.APN)
	set(model.FieldOwnerName, p.Owner.Owner1.FullName)
	set(model.FieldOwnerMailingAddress, p.Owner.MailingAddressOneLine)
	set(model.FieldPropertyAddress, p.Address.OneLine)
	if v := p.Assessment.Assessed.AssdTtlValue; v > 0 {
		set(model.FieldAssessedValue, v)
	}
	set(model.FieldLastSaleDate, p.Sale.SaleTransDate)
	if v := p.Sale.Amount.SaleAmt; v > 0 {
		set(model.FieldLastSaleAmount, v)
	}
	set(model.FieldMortgageLender, p.Mortgage.FirstConcurrent.LenderLastName)
	switch strings.ToUpper(p.Summary.AbsenteeInd) {
	case "OWNER OCCUPIED":
		set(model.FieldHomestead, true)
	case "ABSENTEE OWNER", "ABSENTEE(MAIL AND SITUS NOT =)":
		set(model.FieldHomestead, false)
	}

	if len(p.Raw) > 0 {
		r.Raw = map[string]any{"property": p.Raw}
	}
	if r.Has(model.FieldOwnerName) {
		r.ConfidenceScore = confidenceWithOwner
	} else {
		r.ConfidenceScore = confidenceWithoutOwner
	}
	return r
}
