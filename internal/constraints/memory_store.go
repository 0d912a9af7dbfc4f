package constraints

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	block     Block
	expiresAt time.Time
}

// MemoryStore is an in-process Store, used for tests and for single-node
// deployments without an external KV service.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	clock   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		clock:   time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok || m.clock().After(e.expiresAt) {
		return nil, ErrNotFound
	}
	block := e.block
	return &block, nil
}

func (m *MemoryStore) Set(ctx context.Context, block *Block, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b := *block
	b.LastUpdated = m.clock()
	m.entries[block.SessionID] = entry{block: b, expiresAt: m.clock().Add(ttl)}
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, sessionID string, upd Update, ttl time.Duration) (*Block, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[sessionID]
	var block Block
	if ok && !m.clock().After(e.expiresAt) {
		block = e.block
	} else {
		block = Block{SessionID: sessionID}
	}

	if upd.ClearAll {
		block = Block{SessionID: sessionID}
	} else {
		if upd.DesiredService != nil {
			block.DesiredService = *upd.DesiredService
		}
		if upd.DesiredDoctor != nil {
			block.DesiredDoctor = *upd.DesiredDoctor
		}
		block.ExcludedDoctors = appendUnique(block.ExcludedDoctors, upd.AddExcludedDoctor)
		block.ExcludedServices = appendUnique(block.ExcludedServices, upd.AddExcludedService)
		if upd.TimeWindow != nil {
			block.TimeWindow = *upd.TimeWindow
		}
	}
	block.LastUpdated = m.clock()
	m.entries[sessionID] = entry{block: block, expiresAt: m.clock().Add(ttl)}
	out := block
	return &out, nil
}

func (m *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}

func appendUnique(existing []string, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[v] = true
	}
	out := existing
	for _, v := range add {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
