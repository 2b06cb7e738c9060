package provider

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Key is a normalized jurisdiction name.
type Key string

// NormalizeKey lowercases name, folds "saint"/"st" to "st.", and strips a
// trailing "county".
func NormalizeKey(name string) Key {
	tokens := strings.Fields(strings.ToLower(name))
	for i, tok := range tokens {
		if tok == "saint" || tok == "st" {
			tokens[i] = "st."
		}
	}
	if n := len(tokens); n > 1 && tokens[n-1] == "county" {
		tokens = tokens[:n-1]
	}
	return Key(strings.Join(tokens, " "))
}

// Registry maps jurisdiction keys to adapters. It is built once at startup and
// is read-only afterwards, so lookups need no locking.
type Registry struct {
	providers map[Key]JurisdictionProvider
}

// NewRegistry builds a registry from ps. Two providers normalizing to the same
// key is an error.
func NewRegistry(ps ...JurisdictionProvider) (*Registry, error) {
	r := &Registry{providers: make(map[Key]JurisdictionProvider, len(ps))}
	for _, p := range ps {
		k := NormalizeKey(p.Jurisdiction())
		if k == "" {
			return nil, eris.Errorf("provider: %s has an empty jurisdiction", p.Name())
		}
		if prev, ok := r.providers[k]; ok {
			return nil, eris.Errorf("provider: %s and %s both claim jurisdiction %q", prev.Name(), p.Name(), k)
		}
		r.providers[k] = p
	}
	return r, nil
}

// Resolve returns the adapter for a jurisdiction name. A miss is not an error.
func (r *Registry) Resolve(jurisdiction string) (JurisdictionProvider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[NormalizeKey(jurisdiction)]
	return p, ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []Key {
	if r == nil {
		return nil
	}
	keys := make([]Key, 0, len(r.providers))
	for k := range r.providers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
