package llmtier

import (
	"os"
	"sync"
	"time"
)

// MappingSource provides clinic-specific and global tier→model mappings,
// backed by the relational store.
type MappingSource interface {
	ClinicMapping(clinicID string, tier Tier) (provider, model string, ok bool)
	GlobalMapping(tier Tier) (provider, model string, ok bool)
}

// Registry resolves a tier to a concrete (provider, model) pair following
// the precedence chain: active experiment > env override > clinic mapping >
// global mapping > compiled-in default.
type Registry struct {
	experiments []Experiment
	mappings    MappingSource
	matrix      map[string]Capability // keyed by "provider/model"
	defaults    map[Tier]Capability

	mu       sync.Mutex
	cache    map[string]cachedResolution
	cacheTTL time.Duration
	now      func() time.Time
}

type cachedResolution struct {
	resolution Resolution
	expiresAt  time.Time
}

// Resolution is the outcome of resolving a tier, with the precedence level
// that produced it (for observability).
type Resolution struct {
	Provider string
	Model    string
	Source   string // "experiment" | "env" | "clinic" | "global" | "default"
}

// NewRegistry creates a Registry. defaults must cover every Tier the caller
// intends to resolve. NewRegistry does not check this: resolving a tier that
// has no default and no other match returns an empty Provider and Model.
func NewRegistry(experiments []Experiment, mappings MappingSource, matrix map[string]Capability, defaults map[Tier]Capability) *Registry {
	return &Registry{
		experiments: experiments,
		mappings:    mappings,
		matrix:      matrix,
		defaults:    defaults,
		cache:       make(map[string]cachedResolution),
		cacheTTL:    60 * time.Second,
		now:         time.Now,
	}
}

// Resolve returns the concrete provider/model for a tier and a sticky id
// (typically the session or patient id used for experiment bucketing).
// Mapping and experiment lookups are memoized for cacheTTL (60 seconds).
func (r *Registry) Resolve(clinicID string, tier Tier, stickyID string) Resolution {
	cacheKey := clinicID + "|" + string(tier) + "|" + stickyID

	r.mu.Lock()
	if hit, ok := r.cache[cacheKey]; ok && r.now().Before(hit.expiresAt) {
		r.mu.Unlock()
		return hit.resolution
	}
	r.mu.Unlock()

	res := r.resolveUncached(clinicID, tier, stickyID)

	r.mu.Lock()
	r.cache[cacheKey] = cachedResolution{resolution: res, expiresAt: r.now().Add(r.cacheTTL)}
	r.mu.Unlock()

	return res
}

func (r *Registry) resolveUncached(clinicID string, tier Tier, stickyID string) Resolution {
	for _, exp := range r.experiments {
		if exp.Tier != tier {
			continue
		}
		if variant := ResolveExperiment(stickyID, exp); variant != nil {
			res := Resolution{Provider: variant.Provider, Model: variant.Model, Source: "experiment"}
			return r.withCapabilityFallback(tier, res)
		}
	}

	if model := os.Getenv(envOverrideKey(tier)); model != "" {
		provider, model := splitProviderModel(model)
		res := Resolution{Provider: provider, Model: model, Source: "env"}
		return r.withCapabilityFallback(tier, res)
	}

	if r.mappings != nil {
		if provider, model, ok := r.mappings.ClinicMapping(clinicID, tier); ok {
			res := Resolution{Provider: provider, Model: model, Source: "clinic"}
			return r.withCapabilityFallback(tier, res)
		}
		if provider, model, ok := r.mappings.GlobalMapping(tier); ok {
			res := Resolution{Provider: provider, Model: model, Source: "global"}
			return r.withCapabilityFallback(tier, res)
		}
	}

	def := r.defaults[tier]
	return Resolution{Provider: def.Provider, Model: def.Model, Source: "default"}
}

// withCapabilityFallback validates a resolution against the capability
// matrix; an unknown model falls back to the compiled-in default for the
// tier rather than reaching a provider that will reject the call.
func (r *Registry) withCapabilityFallback(tier Tier, res Resolution) Resolution {
	if _, ok := r.matrix[res.Provider+"/"+res.Model]; ok {
		return res
	}
	def := r.defaults[tier]
	return Resolution{Provider: def.Provider, Model: def.Model, Source: "default"}
}

func envOverrideKey(tier Tier) string {
	name := ""
	for _, c := range string(tier) {
		if c >= 'a' && c <= 'z' {
			name += string(c - 'a' + 'A')
		} else {
			name += string(c)
		}
	}
	return "TIER_" + name + "_MODEL"
}

func splitProviderModel(raw string) (provider, model string) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '/' {
			return raw[:i], raw[i+1:]
		}
	}
	return "", raw
}
