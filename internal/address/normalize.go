// Package address canonicalizes free-text street addresses into the query key
// used against parcel data providers.
package address

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// suffixAbbreviations maps full street-suffix words to their USPS abbreviation.
var suffixAbbreviations = map[string]string{
	"STREET":    "ST",
	"AVENUE":    "AVE",
	"DRIVE":     "DR",
	"BOULEVARD": "BLVD",
	"ROAD":      "RD",
	"LANE":      "LN",
	"COURT":     "CT",
	"CIRCLE":    "CIR",
	"PLACE":     "PL",
	"TERRACE":   "TER",
	"PARKWAY":   "PKWY",
	"HIGHWAY":   "HWY",
	"TRAIL":     "TRL",
	"SQUARE":    "SQ",
}

// unitDesignators mark the start of a secondary unit. The designator and
// everything after it is dropped.
var unitDesignators = map[string]bool{
	"APT":       true,
	"APARTMENT": true,
	"UNIT":      true,
	"STE":       true,
	"SUITE":     true,
	"LOT":       true,
	"BLDG":      true,
	"BUILDING":  true,
}

// Normalize uppercases raw, strips unit designators and everything after them,
// collapses whitespace and abbreviates street suffixes. It is pure and
// idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := foldDiacritics(raw)
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, ",", " ")

	tokens := strings.Fields(s)
	out := make([]string, 0, len(tokens))
	for i, tok := range tokens {
		// A leading token is always the house number or street name, never a unit.
		if i > 0 && (strings.HasPrefix(tok, "#") || unitDesignators[tok]) {
			break
		}
		tok = strings.ReplaceAll(tok, "#", "")
		if tok == "" {
			continue
		}
		if abbr, ok := suffixAbbreviations[tok]; ok {
			tok = abbr
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

// IsUnit reports whether segment, one comma-separated part of an address,
// is a secondary unit such as "Apt 3" or "#12".
func IsUnit(segment string) bool {
	tokens := strings.Fields(strings.ToUpper(segment))
	if len(tokens) == 0 {
		return false
	}
	first := strings.TrimSuffix(tokens[0], ".")
	return strings.HasPrefix(first, "#") || unitDesignators[first]
}

// foldDiacritics maps accented letters to their base form so "Peña" and
// "Pena" produce the same key. Invalid input is returned unchanged.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}
