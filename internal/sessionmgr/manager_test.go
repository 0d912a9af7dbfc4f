package sessionmgr

import (
	"context"
	"sync"
	"testing"
)

type fakeConstraints struct {
	mu      sync.Mutex
	cleared []string
}

func (f *fakeConstraints) Clear(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, sessionID)
	return nil
}

func newTestManager() (*Manager, *fakeConstraints) {
	store := NewMemoryStore()
	locker := NewMemoryLocker(DefaultLockConfig())
	fc := &fakeConstraints{}
	return NewManager(store, locker, fc, nil), fc
}

func TestCheckCreatesSessionWhenNoneActive(t *testing.T) {
	m, fc := newTestManager()
	ctx := context.Background()

	res, err := m.Check(ctx, "+1000", "clinic-a", Signals{}, PatientCarryover{})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if res.Reset != ResetNone {
		t.Fatalf("expected no reset on first contact, got %v", res.Reset)
	}
	if len(fc.cleared) != 1 || fc.cleared[0] != res.Session.ID {
		t.Fatalf("expected constraints cleared for new session, got %v", fc.cleared)
	}
}

func TestCheckHardResetCreatesNewSessionAndCarriesOverProfile(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	first, err := m.Check(ctx, "+1000", "clinic-a", Signals{}, PatientCarryover{})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}

	carry := PatientCarryover{PreferredLanguage: "ru", HardDoctorBans: []string{"Dr. X"}}
	second, err := m.Check(ctx, "+1000", "clinic-a", Signals{ExplicitResetPhrase: true}, carry)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if second.Reset != ResetHard {
		t.Fatalf("expected hard reset, got %v", second.Reset)
	}
	if second.Session.ID == first.Session.ID {
		t.Fatal("expected a new session id on hard reset")
	}
	if second.Session.PrevSessionID != first.Session.ID {
		t.Fatalf("expected prev session id to be %q, got %q", first.Session.ID, second.Session.PrevSessionID)
	}
	if second.Carryover == nil || second.Carryover.PreferredLanguage != "ru" {
		t.Fatalf("expected carryover to be attached, got %+v", second.Carryover)
	}
}

func TestCheckContinuesSessionBelowThreshold(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	first, err := m.Check(ctx, "+1000", "clinic-a", Signals{}, PatientCarryover{})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	second, err := m.Check(ctx, "+1000", "clinic-a", Signals{}, PatientCarryover{})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if second.Reset != ResetNone || second.Session.ID != first.Session.ID {
		t.Fatalf("expected continuation of the same session, got %+v", second)
	}
}
