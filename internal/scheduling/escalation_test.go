package scheduling

import (
	"context"
	"testing"
	"time"
)

func TestRelaxationSuggestionsOrder(t *testing.T) {
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	req := SuggestRequest{DateRange: DateRange{Start: start, End: end}}
	suggestions := relaxationSuggestions(req)

	if len(suggestions) != 5 {
		t.Fatalf("expected 5 suggestions, got %d", len(suggestions))
	}
	if !suggestions[0].DateRange.End.Equal(end.AddDate(0, 0, 3)) {
		t.Fatalf("expected first suggestion to expand by 3 days")
	}
	if !suggestions[1].DropTimeOfDay {
		t.Fatalf("expected second suggestion to drop time-of-day")
	}
	if !suggestions[2].DropDoctorPreference {
		t.Fatalf("expected third suggestion to drop doctor preference")
	}
	if !suggestions[3].DateRange.End.Equal(end.AddDate(0, 0, 7)) {
		t.Fatalf("expected fourth suggestion to expand by 7 days")
	}
	if !suggestions[4].DropTimeOfDay || !suggestions[4].DropDoctorPreference {
		t.Fatalf("expected fifth suggestion to be fully relaxed")
	}
}

func TestDeclineEscalationRecordsReason(t *testing.T) {
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

	if err := e.DeclineEscalation(context.Background(), result.Escalation.ID, "patient chose to wait"); err != nil {
		t.Fatalf("decline failed: %v", err)
	}

	updated, err := e.escalations.Get(context.Background(), result.Escalation.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if updated.Status != EscalationDeclined || updated.DeclineReason != "patient chose to wait" {
		t.Fatalf("unexpected escalation state: %+v", updated)
	}
}
