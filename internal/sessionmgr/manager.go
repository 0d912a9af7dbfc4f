package sessionmgr

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SummaryTrigger kicks off background summarization of a just-archived
// session. It must return quickly; long-running work belongs in the
// implementation's own goroutine/queue, not on this call.
type SummaryTrigger interface {
	Trigger(ctx context.Context, sessionID string) error
}

// SummaryTriggerFunc adapts a function to a SummaryTrigger.
type SummaryTriggerFunc func(ctx context.Context, sessionID string) error

// Trigger calls the underlying function.
func (f SummaryTriggerFunc) Trigger(ctx context.Context, sessionID string) error {
	return f(ctx, sessionID)
}

// ConstraintClearer clears the constraint block tied to a session. Check
// calls it for every session it creates (first contact, hard reset and
// soft reset alike); a soft reset does not narrow the block instead. The
// session manager depends on this narrow interface rather than importing
// the constraints package's store type directly, keeping the two packages
// decoupled.
type ConstraintClearer interface {
	Clear(ctx context.Context, sessionID string) error
}

// Manager detects boundaries and drives session creation/reset/archival.
type Manager struct {
	store      Store
	locker     BoundaryLocker
	constraints ConstraintClearer
	summaries  SummaryTrigger
	now        func() time.Time
}

// NewManager wires a Manager from its collaborators.
func NewManager(store Store, locker BoundaryLocker, constraints ConstraintClearer, summaries SummaryTrigger) *Manager {
	return &Manager{
		store:       store,
		locker:      locker,
		constraints: constraints,
		summaries:   summaries,
		now:         time.Now,
	}
}

// CheckResult is what callers need after a boundary check: the session to
// use for this turn, what kind of reset (if any) occurred, and the
// carryover applied on a hard reset.
type CheckResult struct {
	Session   *Session
	Reset     ResetKind
	Carryover *PatientCarryover
}

// Check runs the full boundary-detection and reset flow under a distributed
// lock keyed by (phone, clinic), matching ordering guarantee O1: at most one
// session creation/archival proceeds at a time per pair.
func (m *Manager) Check(ctx context.Context, phone, clinicID string, signals Signals, carryover PatientCarryover) (*CheckResult, error) {
	lockKey := "boundary_lock:" + clinicID + ":" + phone
	token, err := m.locker.Acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer m.locker.Release(ctx, lockKey, token)

	existing, err := m.store.GetActive(ctx, phone, clinicID)
	if err == ErrNoActiveSession {
		s, createErr := m.createSession(ctx, phone, clinicID, "")
		if createErr != nil {
			return nil, createErr
		}
		return &CheckResult{Session: s, Reset: ResetNone}, nil
	}
	if err != nil {
		return nil, err
	}

	// A caller that leaves Gap unset gets the time since the active
	// session's last activity.
	if signals.Gap == 0 {
		signals.Gap = m.now().Sub(existing.LastActivityAt)
	}

	score := Score(signals)
	kind := Classify(score)

	switch kind {
	case ResetHard:
		if archErr := m.archive(ctx, existing.ID); archErr != nil {
			return nil, archErr
		}
		s, createErr := m.createSession(ctx, phone, clinicID, existing.ID)
		if createErr != nil {
			return nil, createErr
		}
		return &CheckResult{Session: s, Reset: ResetHard, Carryover: &carryover}, nil

	case ResetSoft:
		// The source contains two SOFT code paths; the reachable one
		// creates a new session linked to the old one by PrevSessionID
		// rather than reusing the old session id. The previous session's
		// summary is not copied into the new session or the result.
		if archErr := m.archive(ctx, existing.ID); archErr != nil {
			return nil, archErr
		}
		s, createErr := m.createSession(ctx, phone, clinicID, existing.ID)
		if createErr != nil {
			return nil, createErr
		}
		return &CheckResult{Session: s, Reset: ResetSoft}, nil

	default:
		if touchErr := m.store.Touch(ctx, existing.ID, m.now()); touchErr != nil {
			return nil, touchErr
		}
		existing.LastActivityAt = m.now()
		return &CheckResult{Session: existing, Reset: ResetNone}, nil
	}
}

func (m *Manager) createSession(ctx context.Context, phone, clinicID, prevSessionID string) (*Session, error) {
	s := &Session{
		ID:             uuid.NewString(),
		Phone:          phone,
		ClinicID:       clinicID,
		Status:         StatusActive,
		StartedAt:      m.now(),
		LastActivityAt: m.now(),
		PrevSessionID:  prevSessionID,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	if m.constraints != nil {
		if err := m.constraints.Clear(ctx, s.ID); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// archive is idempotent and fires summarization in the background without
// blocking the caller (archival never blocks on summarization).
func (m *Manager) archive(ctx context.Context, sessionID string) error {
	if err := m.store.Archive(ctx, sessionID); err != nil {
		return err
	}
	if m.summaries != nil {
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = m.summaries.Trigger(bgCtx, sessionID)
		}()
	}
	return nil
}
