package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dsmolchanov/clinic-scheduler/internal/constraints"
	"github.com/dsmolchanov/clinic-scheduler/internal/sessionmgr"
)

// ClinicStore loads ClinicProfile snapshots, with its own caching.
type ClinicStore interface {
	Clinic(ctx context.Context, clinicID string) (ClinicProfile, error)
}

// PatientStore loads the cross-session PatientProfile.
type PatientStore interface {
	Patient(ctx context.Context, clinicID, phone string) (PatientProfile, error)
}

// HistoryStore loads recent conversation turns for a session, bounded by
// a token budget rather than a hard message count.
type HistoryStore interface {
	History(ctx context.Context, sessionID string, tokenBudget int) ([]HistoryMessage, error)
}

// clinicCacheEntry is a per-process, per-clinic cached snapshot.
type clinicCacheEntry struct {
	profile   ClinicProfile
	expiresAt time.Time
}

// ClinicCache wraps a ClinicStore with a short-TTL cache and an in-flight
// warm-refresh flag per clinic, matching the teacher's map+mutex cache
// idiom (internal/cache.DedupeCache).
type ClinicCache struct {
	mu       sync.Mutex
	entries  map[string]clinicCacheEntry
	inFlight map[string]bool
	store    ClinicStore
	ttl      time.Duration
	clock    func() time.Time
}

// NewClinicCache wires a ClinicCache with a TTL (default 60s).
func NewClinicCache(store ClinicStore, ttl time.Duration) *ClinicCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &ClinicCache{
		entries:  make(map[string]clinicCacheEntry),
		inFlight: make(map[string]bool),
		store:    store,
		ttl:      ttl,
		clock:    time.Now,
	}
}

// Get returns a cached profile if fresh, loading synchronously on a cold
// cache and triggering a background warm refresh on a stale one.
func (c *ClinicCache) Get(ctx context.Context, clinicID string) (ClinicProfile, error) {
	c.mu.Lock()
	entry, ok := c.entries[clinicID]
	c.mu.Unlock()

	if !ok {
		return c.load(ctx, clinicID)
	}
	if c.clock().After(entry.expiresAt) {
		c.warmRefresh(clinicID)
	}
	return entry.profile, nil
}

func (c *ClinicCache) load(ctx context.Context, clinicID string) (ClinicProfile, error) {
	profile, err := c.store.Clinic(ctx, clinicID)
	if err != nil {
		return ClinicProfile{}, err
	}
	c.mu.Lock()
	c.entries[clinicID] = clinicCacheEntry{profile: profile, expiresAt: c.clock().Add(c.ttl)}
	c.mu.Unlock()
	return profile, nil
}

func (c *ClinicCache) warmRefresh(clinicID string) {
	c.mu.Lock()
	if c.inFlight[clinicID] {
		c.mu.Unlock()
		return
	}
	c.inFlight[clinicID] = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.inFlight, clinicID)
			c.mu.Unlock()
		}()
		c.load(context.Background(), clinicID)
	}()
}

// Hydrator fetches everything the pipeline needs for one turn, in
// parallel, and assembles it into a TurnContext.
type Hydrator struct {
	clinics     *ClinicCache
	patients    PatientStore
	sessions    sessionmgr.Store
	history     HistoryStore
	constraints constraints.Store
}

// NewHydrator wires a Hydrator from its collaborators.
func NewHydrator(clinics *ClinicCache, patients PatientStore, sessions sessionmgr.Store, history HistoryStore, constraintsStore constraints.Store) *Hydrator {
	return &Hydrator{clinics: clinics, patients: patients, sessions: sessions, history: history, constraints: constraintsStore}
}

const historyTokenBudget = 4000

// Hydrate fetches the clinic profile, patient record, active session,
// constraint block, and recent history concurrently and assembles a
// TurnContext. The first hydration error is returned; partial fetches
// from other goroutines are discarded.
func (h *Hydrator) Hydrate(ctx context.Context, clinicID, phone, messageBody, language string) (*TurnContext, error) {
	tc := &TurnContext{ClinicID: clinicID, Phone: phone, MessageBody: messageBody, Language: language}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		profile, err := h.clinics.Get(ctx, clinicID)
		if err != nil {
			fail(err)
			return
		}
		mu.Lock()
		tc.Clinic = profile
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		patient, err := h.patients.Patient(ctx, clinicID, phone)
		if err != nil {
			fail(err)
			return
		}
		mu.Lock()
		tc.Patient = patient
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		session, err := h.sessions.GetActive(ctx, clinicID, phone)
		if err != nil && err != sessionmgr.ErrNoActiveSession {
			fail(err)
			return
		}
		mu.Lock()
		tc.Session = session
		mu.Unlock()
	}()

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	// Constraints and history both key off the session fetched above, so
	// they run after the barrier rather than racing the goroutine that
	// sets tc.Session.
	if tc.Session != nil {
		var wg2 sync.WaitGroup
		wg2.Add(2)
		go func() {
			defer wg2.Done()
			if block, err := h.constraints.Get(ctx, tc.Session.ID); err == nil {
				tc.Constraints = block
			}
		}()
		go func() {
			defer wg2.Done()
			if history, err := h.history.History(ctx, tc.Session.ID, historyTokenBudget); err == nil {
				tc.History = history
			}
		}()
		wg2.Wait()
	}

	return tc, nil
}
