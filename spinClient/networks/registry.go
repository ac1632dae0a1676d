package networks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Registry is the set of supported network profiles, selected by key.
type Registry struct {
	profiles   map[string]Profile
	defaultKey string
}

// NewRegistry validates every profile and builds a registry.
// defaultKey must name one of the profiles.
func NewRegistry(profiles map[string]Profile, defaultKey string) (*Registry, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no network profiles configured")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	out := make(map[string]Profile, len(profiles))
	for key, p := range profiles {
		p.Key = key
		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("invalid network profile %q: %w", key, err)
		}
		if p.SupportsFeeTokenPayment && p.FeeTokenPaymaster == "" {
			return nil, fmt.Errorf("invalid network profile %q: fee token payment requires fee_token_paymaster", key)
		}
		out[key] = p
	}

	if _, ok := out[defaultKey]; !ok {
		return nil, fmt.Errorf("default network %q is not configured", defaultKey)
	}

	return &Registry{profiles: out, defaultKey: defaultKey}, nil
}

// Get returns the profile for key.
func (r *Registry) Get(key string) (Profile, error) {
	p, ok := r.profiles[key]
	if !ok {
		return Profile{}, fmt.Errorf("unknown network %q (known: %s)", key, strings.Join(r.Keys(), ", "))
	}
	return p, nil
}

// Has reports whether key names a configured profile.
func (r *Registry) Has(key string) bool {
	_, ok := r.profiles[key]
	return ok
}

// Default returns the default profile.
func (r *Registry) Default() Profile {
	return r.profiles[r.defaultKey]
}

// Keys returns the configured network keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.profiles))
	for k := range r.profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns every profile in key order.
func (r *Registry) All() []Profile {
	keys := r.Keys()
	out := make([]Profile, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.profiles[k])
	}
	return out
}

// Resolve returns the profile for key, falling back to the default when key is
// empty or unknown. The boolean is false when a fallback happened.
func (r *Registry) Resolve(key string) (Profile, bool) {
	if p, ok := r.profiles[key]; ok {
		return p, true
	}
	return r.Default(), false
}
