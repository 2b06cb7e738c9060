package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field identifies a canonical LookupResult field.
type Field string

const (
	FieldParcelID            Field = "parcel_id"
	FieldOwnerName           Field = "owner_name"
	FieldOwnerMailingAddress Field = "owner_mailing_address"
	FieldPropertyAddress     Field = "property_address"
	FieldHomestead           Field = "homestead"
	FieldAssessedValue       Field = "assessed_value"
	FieldLastSaleDate        Field = "last_sale_date"
	FieldLastSaleAmount      Field = "last_sale_amount"
	FieldMortgageLender      Field = "mortgage_lender"
)

// Fields lists every canonical field in display order.
var Fields = []Field{
	FieldParcelID,
	FieldOwnerName,
	FieldOwnerMailingAddress,
	FieldPropertyAddress,
	FieldHomestead,
	FieldAssessedValue,
	FieldLastSaleDate,
	FieldLastSaleAmount,
	FieldMortgageLender,
}

// Valid reports whether f is a known canonical field.
func (f Field) Valid() bool {
	for _, k := range Fields {
		if k == f {
			return true
		}
	}
	return false
}

// LookupInput is one resolution request. It is not mutated by adapters.
type LookupInput struct {
	Address      string        `json:"address"`
	Jurisdiction string        `json:"jurisdiction,omitempty"` // e.g. "St. Lucie County"
	State        string        `json:"state,omitempty"`
	Lat          *float64      `json:"lat,omitempty"`
	Lng          *float64      `json:"lng,omitempty"`
	Timeout      time.Duration `json:"-"`
}

// HasPoint reports whether the input carries a coordinate pair.
func (in LookupInput) HasPoint() bool {
	return in.Lat != nil && in.Lng != nil
}

// LookupResult is the merge target for property resolution. Optional fields
// are nil when unknown.
type LookupResult struct {
	ParcelID            *string  `json:"parcel_id,omitempty"`
	OwnerName           *string  `json:"owner_name,omitempty"`
	OwnerMailingAddress *string  `json:"owner_mailing_address,omitempty"`
	PropertyAddress     *string  `json:"property_address,omitempty"`
	Homestead           *bool    `json:"homestead,omitempty"`
	AssessedValue       *float64 `json:"assessed_value,omitempty"`
	LastSaleDate        *string  `json:"last_sale_date,omitempty"`
	LastSaleAmount      *float64 `json:"last_sale_amount,omitempty"`
	MortgageLender      *string  `json:"mortgage_lender,omitempty"`

	Source          string         `json:"source"`
	ConfidenceScore int            `json:"confidence_score"`
	Raw             map[string]any `json:"raw,omitempty"`
	Diagnostic      string         `json:"diagnostic,omitempty"`

	// Provenance records which source supplied each populated field.
	Provenance map[Field]string `json:"provenance,omitempty"`
}

// EmptyResult returns a zero-confidence result carrying only a diagnostic.
func EmptyResult(source, diagnostic string) *LookupResult {
	return &LookupResult{Source: source, Diagnostic: diagnostic}
}

// ClampConfidence bounds a score to [0,100].
func ClampConfidence(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

// Has reports whether field f holds a non-empty value.
func (r *LookupResult) Has(f Field) bool {
	_, ok := r.Get(f)
	return ok
}

// Get returns the value of field f, or false when it is unset or empty.
func (r *LookupResult) Get(f Field) (any, bool) {
	if r == nil {
		return nil, false
	}
	switch f {
	case FieldParcelID:
		return strValue(r.ParcelID)
	case FieldOwnerName:
		return strValue(r.OwnerName)
	case FieldOwnerMailingAddress:
		return strValue(r.OwnerMailingAddress)
	case FieldPropertyAddress:
		return strValue(r.PropertyAddress)
	case FieldHomestead:
		if r.Homestead == nil {
			return nil, false
		}
		return *r.Homestead, true
	case FieldAssessedValue:
		return numValue(r.AssessedValue)
	case FieldLastSaleDate:
		return strValue(r.LastSaleDate)
	case FieldLastSaleAmount:
		return numValue(r.LastSaleAmount)
	case FieldMortgageLender:
		return strValue(r.MortgageLender)
	}
	return nil, false
}

// Set assigns v to field f after coercing it to the field's type. It returns
// false and leaves r untouched when v is empty or cannot be coerced.
func (r *LookupResult) Set(f Field, v any) bool {
	switch f {
	case FieldParcelID:
		return setString(&r.ParcelID, v)
	case FieldOwnerName:
		return setString(&r.OwnerName, v)
	case FieldOwnerMailingAddress:
		return setString(&r.OwnerMailingAddress, v)
	case FieldPropertyAddress:
		return setString(&r.PropertyAddress, v)
	case FieldLastSaleDate:
		return setString(&r.LastSaleDate, v)
	case FieldMortgageLender:
		return setString(&r.MortgageLender, v)
	case FieldHomestead:
		b, ok := v.(bool)
		if !ok {
			return false
		}
		r.Homestead = &b
		return true
	case FieldAssessedValue:
		return setNumber(&r.AssessedValue, v)
	case FieldLastSaleAmount:
		return setNumber(&r.LastSaleAmount, v)
	}
	return false
}

// PopulatedFields returns the canonical fields that hold a value.
func (r *LookupResult) PopulatedFields() []Field {
	var out []Field
	for _, f := range Fields {
		if r.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func strValue(p *string) (any, bool) {
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil, false
	}
	return *p, true
}

func numValue(p *float64) (any, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}

func setString(dst **string, v any) bool {
	var s string
	switch x := v.(type) {
	case nil:
		return false
	case string:
		s = x
	case json.Number:
		s = x.String()
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case int, int64:
		s = fmt.Sprint(x)
	default:
		return false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	*dst = &s
	return true
}

func setNumber(dst **float64, v any) bool {
	n, ok := ToFloat(v)
	if !ok {
		return false
	}
	*dst = &n
	return true
}

// ToFloat coerces common JSON number representations to float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		n, err := x.Float64()
		return n, err == nil
	case string:
		n, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x), ",", ""), 64)
		return n, err == nil
	}
	return 0, false
}
