package llmtier

import "sync"

// MemoryMappingSource is an in-process MappingSource for single-node
// deployments: clinics that haven't been given a per-tier override fall
// straight through to the Registry's compiled-in defaults.
type MemoryMappingSource struct {
	mu      sync.RWMutex
	clinic  map[string]map[Tier]mapping
	global  map[Tier]mapping
}

type mapping struct {
	provider string
	model    string
}

// NewMemoryMappingSource builds an empty MemoryMappingSource.
func NewMemoryMappingSource() *MemoryMappingSource {
	return &MemoryMappingSource{
		clinic: make(map[string]map[Tier]mapping),
		global: make(map[Tier]mapping),
	}
}

// SetGlobal pins a tier's provider/model for every clinic that has no
// clinic-specific override.
func (m *MemoryMappingSource) SetGlobal(tier Tier, provider, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global[tier] = mapping{provider: provider, model: model}
}

// SetClinic pins a tier's provider/model for one clinic, taking precedence
// over the global mapping.
func (m *MemoryMappingSource) SetClinic(clinicID string, tier Tier, provider, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clinic[clinicID] == nil {
		m.clinic[clinicID] = make(map[Tier]mapping)
	}
	m.clinic[clinicID][tier] = mapping{provider: provider, model: model}
}

func (m *MemoryMappingSource) ClinicMapping(clinicID string, tier Tier) (string, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mp, ok := m.clinic[clinicID][tier]
	return mp.provider, mp.model, ok
}

func (m *MemoryMappingSource) GlobalMapping(tier Tier) (string, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mp, ok := m.global[tier]
	return mp.provider, mp.model, ok
}

// ProviderSet resolves a provider name (as returned by Registry.Resolve) to
// the concrete adapter that should serve the request. It implements
// pipeline.ProviderResolver structurally.
type ProviderSet struct {
	byName map[string]Provider
}

// NewProviderSet indexes providers by their Name().
func NewProviderSet(providers ...Provider) *ProviderSet {
	set := &ProviderSet{byName: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		set.byName[p.Name()] = p
	}
	return set
}

// Provider looks up a registered adapter by name.
func (s *ProviderSet) Provider(name string) (Provider, bool) {
	p, ok := s.byName[name]
	return p, ok
}
