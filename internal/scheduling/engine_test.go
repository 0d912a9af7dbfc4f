package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/dsmolchanov/clinic-scheduler/internal/rules"
)

type fakeCandidates struct {
	doctors []string
	rooms   []string
}

func (f fakeCandidates) DoctorsForService(ctx context.Context, clinicID, serviceID string) ([]string, error) {
	return f.doctors, nil
}

func (f fakeCandidates) Rooms(ctx context.Context, clinicID string) ([]string, error) {
	return f.rooms, nil
}

type fakeChecker struct {
	unavailableRooms map[string]bool
}

func (f fakeChecker) DoctorEligibleForService(ctx context.Context, doctorID, serviceID string) (bool, error) {
	return true, nil
}

func (f fakeChecker) DoctorWorking(ctx context.Context, doctorID string, start, end time.Time) (bool, error) {
	return true, nil
}

func (f fakeChecker) DoctorOnTimeOff(ctx context.Context, doctorID string, start, end time.Time) (bool, error) {
	return false, nil
}

func (f fakeChecker) RoomAvailable(ctx context.Context, roomID string, start, end time.Time) (bool, error) {
	return !f.unavailableRooms[roomID], nil
}

func (f fakeChecker) DoctorAppointmentCount(ctx context.Context, doctorID string, day time.Time) (int, error) {
	return 0, nil
}

func (f fakeChecker) NearestAppointmentGap(ctx context.Context, doctorID string, start time.Time) (time.Duration, error) {
	return time.Hour, nil
}

func (f fakeChecker) DoctorPreferredRoom(ctx context.Context, doctorID string) (string, error) {
	return "", nil
}

type fakeSettings struct {
	settings ClinicScheduleSettings
	policy   *rules.CompiledPolicy
}

func (f fakeSettings) Settings(ctx context.Context, clinicID string) (ClinicScheduleSettings, error) {
	return f.settings, nil
}

func (f fakeSettings) Policy(ctx context.Context, clinicID string) (*rules.CompiledPolicy, error) {
	return f.policy, nil
}

func testEngine(t *testing.T, unavailableRooms map[string]bool) *Engine {
	t.Helper()
	settings := fakeSettings{
		settings: ClinicScheduleSettings{
			ClinicID:    "clinic-1",
			Timezone:    time.UTC,
			GridMinutes: 60,
			OpenHour:    9,
			CloseHour:   12,
			Weights:     DefaultPreferenceWeights(),
		},
		policy: &rules.CompiledPolicy{BundleID: "bundle-1", Digest: "digest-1"},
	}
	candidates := fakeCandidates{doctors: []string{"doc-1"}, rooms: []string{"room-1"}}
	checker := fakeChecker{unavailableRooms: unavailableRooms}
	return NewEngine(candidates, checker, settings, NewMemoryHoldStore(), NewMemoryAppointmentStore(), NewMemoryEscalationStore())
}

func TestSuggestSlotsReturnsScoredSlots(t *testing.T) {
	e := testEngine(t, nil)
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	result, err := e.SuggestSlots(context.Background(), SuggestRequest{
		ClinicID:    "clinic-1",
		ServiceID:   "svc-1",
		PatientID:   "patient-1",
		DateRange:   DateRange{Start: start, End: start},
		Preferences: PatientPreferences{PreferredHour: -1},
	})
	if err != nil {
		t.Fatalf("suggest failed: %v", err)
	}
	if result.Escalation != nil {
		t.Fatalf("expected slots, got escalation: %+v", result.Escalation)
	}
	if len(result.Slots) == 0 {
		t.Fatalf("expected at least one slot")
	}
	for i := 1; i < len(result.Slots); i++ {
		if result.Slots[i].Score > result.Slots[i-1].Score {
			t.Fatalf("slots not sorted by score descending")
		}
	}
}

func TestSuggestSlotsEscalatesWhenNoneAvailable(t *testing.T) {
	e := testEngine(t, map[string]bool{"room-1": true})
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	result, err := e.SuggestSlots(context.Background(), SuggestRequest{
		ClinicID:  "clinic-1",
		ServiceID: "svc-1",
		PatientID: "patient-1",
		DateRange: DateRange{Start: start, End: start},
	})
	if err != nil {
		t.Fatalf("suggest failed: %v", err)
	}
	if result.Escalation == nil {
		t.Fatalf("expected an escalation when no rooms are available")
	}
	if len(result.Escalation.Suggestions) != 5 {
		t.Fatalf("expected 5 relaxation suggestions, got %d", len(result.Escalation.Suggestions))
	}
}

func TestSuggestSlotsDedupesEscalations(t *testing.T) {
	e := testEngine(t, map[string]bool{"room-1": true})
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	req := SuggestRequest{
		ClinicID:  "clinic-1",
		ServiceID: "svc-1",
		PatientID: "patient-1",
		DateRange: DateRange{Start: start, End: start},
	}
	first, err := e.SuggestSlots(context.Background(), req)
	if err != nil {
		t.Fatalf("suggest failed: %v", err)
	}
	second, err := e.SuggestSlots(context.Background(), req)
	if err != nil {
		t.Fatalf("suggest failed: %v", err)
	}
	if first.Escalation.ID != second.Escalation.ID {
		t.Fatalf("expected deduped escalation, got two distinct ids")
	}
}

func TestHoldSlotIsIdempotentByClientHoldID(t *testing.T) {
	e := testEngine(t, nil)
	slot := Slot{DoctorID: "doc-1", RoomID: "room-1", ServiceID: "svc-1", StartTime: time.Now(), EndTime: time.Now().Add(30 * time.Minute)}

	first, err := e.HoldSlot(context.Background(), slot, "client-hold-1", "patient-1", "clinic-1")
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}
	second, err := e.HoldSlot(context.Background(), slot, "client-hold-1", "patient-1", "clinic-1")
	if err != nil {
		t.Fatalf("second hold failed: %v", err)
	}
	if first.HoldID != second.HoldID {
		t.Fatalf("expected idempotent hold, got different ids")
	}
}

func TestConfirmHoldDeletesHoldAndCreatesAppointment(t *testing.T) {
	e := testEngine(t, nil)
	slot := Slot{DoctorID: "doc-1", RoomID: "room-1", ServiceID: "svc-1", StartTime: time.Now(), EndTime: time.Now().Add(30 * time.Minute)}
	hold, err := e.HoldSlot(context.Background(), slot, "client-hold-2", "patient-1", "clinic-1")
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	result, err := e.ConfirmHold(context.Background(), hold.HoldID, "patient-1", "svc-1", nil)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if result.Appointment.Status != AppointmentScheduled {
		t.Fatalf("expected scheduled appointment, got %+v", result.Appointment)
	}

	if _, err := e.holds.Get(context.Background(), hold.HoldID); err == nil {
		t.Fatalf("expected hold to be deleted after confirm")
	}
}

func TestConfirmHoldRejectsExpiredHold(t *testing.T) {
	e := testEngine(t, nil)
	now := time.Now()
	e.clock = func() time.Time { return now }
	slot := Slot{DoctorID: "doc-1", RoomID: "room-1", ServiceID: "svc-1", StartTime: now, EndTime: now.Add(30 * time.Minute)}
	hold, err := e.HoldSlot(context.Background(), slot, "client-hold-3", "patient-1", "clinic-1")
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	e.clock = func() time.Time { return now.Add(10 * time.Minute) }
	_, err = e.ConfirmHold(context.Background(), hold.HoldID, "patient-1", "svc-1", nil)
	if err != ErrHoldExpired {
		t.Fatalf("expected ErrHoldExpired, got %v", err)
	}
}
