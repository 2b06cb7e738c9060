package waterfall

import (
	"sort"
	"strings"

	"github.com/sells-group/parcel-resolver/internal/model"
)

// Merge combines results field by field. Fields populated by authoritative are
// never overwritten. Among the others, an unset field is filled and a field set
// by a lower-confidence source is replaced. The merged confidence is the max of
// the inputs. Nil inputs are ignored; Merge returns nil when all are nil.
func Merge(authoritative *model.LookupResult, others ...*model.LookupResult) *model.LookupResult {
	all := make([]*model.LookupResult, 0, len(others)+1)
	if authoritative != nil {
		all = append(all, authoritative)
	}
	for _, o := range others {
		if o != nil {
			all = append(all, o)
		}
	}
	if len(all) == 0 {
		return nil
	}

	out := &model.LookupResult{Provenance: make(map[model.Field]string)}
	owner := make(map[model.Field]*model.LookupResult)

	if authoritative != nil {
		for _, f := range authoritative.PopulatedFields() {
			v, _ := authoritative.Get(f)
			out.Set(f, v)
			out.Provenance[f] = sourceOf(authoritative, f)
			owner[f] = authoritative
		}
	}

	for _, o := range others {
		if o == nil {
			continue
		}
		for _, f := range o.PopulatedFields() {
			cur, set := owner[f]
			if set && (cur == authoritative || cur.ConfidenceScore >= o.ConfidenceScore) {
				continue
			}
			v, _ := o.Get(f)
			if out.Set(f, v) {
				out.Provenance[f] = sourceOf(o, f)
				owner[f] = o
			}
		}
	}

	var diags []string
	raw := make(map[string]any)
	best := all[0]
	for _, r := range all {
		out.ConfidenceScore = max(out.ConfidenceScore, model.ClampConfidence(r.ConfidenceScore))
		if r.ConfidenceScore > best.ConfidenceScore {
			best = r
		}
		if r.Diagnostic != "" {
			diags = append(diags, r.Source+": "+r.Diagnostic)
		}
		if r.Raw != nil {
			raw[r.Source] = r.Raw
		}
	}
	out.Source = mergedSource(out.Provenance, best.Source)
	out.Diagnostic = strings.Join(diags, "; ")
	if len(raw) > 0 {
		out.Raw = raw
	}
	if len(out.Provenance) == 0 {
		out.Provenance = nil
	}
	return out
}

func sourceOf(r *model.LookupResult, f model.Field) string {
	if s, ok := r.Provenance[f]; ok && s != "" {
		return s
	}
	return r.Source
}

// mergedSource joins the contributing sources, or returns fallback when no
// field was populated.
func mergedSource(prov map[model.Field]string, fallback string) string {
	seen := make(map[string]bool)
	var srcs []string
	for _, s := range prov {
		if !seen[s] {
			seen[s] = true
			srcs = append(srcs, s)
		}
	}
	if len(srcs) == 0 {
		return fallback
	}
	sort.Strings(srcs)
	return strings.Join(srcs, "+")
}
