package scheduling

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dsmolchanov/clinic-scheduler/internal/llmtier"
	"github.com/dsmolchanov/clinic-scheduler/internal/toolexec"
)

func callTool(t *testing.T, turn *toolexec.Turn, name string, args map[string]any) llmtier.ToolResult {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return turn.RunTool(context.Background(), llmtier.ToolCall{ID: "call-1", Name: name, Arguments: raw})
}

func TestCatalogCheckAvailabilityReturnsSlots(t *testing.T) {
	e := testEngine(t, nil)
	catalog := NewCatalog(e, nil)
	turn := catalog.Executor("clinic-1").NewTurn("session-1")

	result := callTool(t, turn, ToolCheckAvailability, map[string]any{
		"service": "svc-1",
		"start":   "2026-08-03",
		"end":     "2026-08-03",
	})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", result.Content)
	}

	var slots []map[string]any
	if err := json.Unmarshal([]byte(result.Content), &slots); err != nil {
		t.Fatalf("unmarshal slots: %v", err)
	}
	if len(slots) == 0 {
		t.Fatalf("expected at least one slot")
	}
}

func TestCatalogCreateHoldThenConfirm(t *testing.T) {
	e := testEngine(t, nil)
	catalog := NewCatalog(e, nil)
	turn := catalog.Executor("clinic-1").NewTurn("session-1")

	availability := callTool(t, turn, ToolCheckAvailability, map[string]any{
		"service": "svc-1",
		"start":   "2026-08-03",
		"end":     "2026-08-03",
	})
	if availability.IsError {
		t.Fatalf("check_availability failed: %s", availability.Content)
	}
	var slots []map[string]any
	if err := json.Unmarshal([]byte(availability.Content), &slots); err != nil || len(slots) == 0 {
		t.Fatalf("expected slots, got %q (err %v)", availability.Content, err)
	}
	slot := slots[0]

	hold := callTool(t, turn, ToolCreateHold, map[string]any{
		"doctor":         slot["doctor_id"],
		"room":           slot["room_id"],
		"service":        slot["service_id"],
		"start":          slot["start_time"],
		"end":            slot["end_time"],
		"patient_id":     "patient-1",
		"client_hold_id": "client-hold-catalog-1",
	})
	if hold.IsError {
		t.Fatalf("create_hold failed: %s", hold.Content)
	}
	var holdPayload struct {
		HoldID string `json:"hold_id"`
	}
	if err := json.Unmarshal([]byte(hold.Content), &holdPayload); err != nil || holdPayload.HoldID == "" {
		t.Fatalf("expected hold id, got %q (err %v)", hold.Content, err)
	}

	confirm := callTool(t, turn, ToolConfirmAppointment, map[string]any{
		"hold_id":    holdPayload.HoldID,
		"patient_id": "patient-1",
		"service":    "svc-1",
	})
	if confirm.IsError {
		t.Fatalf("confirm_appointment failed: %s", confirm.Content)
	}
	var confirmPayload struct {
		AppointmentID string `json:"appointment_id"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal([]byte(confirm.Content), &confirmPayload); err != nil {
		t.Fatalf("unmarshal confirm payload: %v", err)
	}
	if confirmPayload.Status != string(AppointmentScheduled) {
		t.Fatalf("expected scheduled status, got %q", confirmPayload.Status)
	}

	cancel := callTool(t, turn, ToolCancelAppointment, map[string]any{
		"appointment_id": confirmPayload.AppointmentID,
		"reason":         "patient requested",
	})
	if cancel.IsError {
		t.Fatalf("cancel_appointment failed: %s", cancel.Content)
	}

	secondCancel := callTool(t, turn, ToolCancelAppointment, map[string]any{
		"appointment_id": confirmPayload.AppointmentID,
	})
	if !secondCancel.IsError {
		t.Fatalf("expected second cancel to fail, got %q", secondCancel.Content)
	}
}

func TestCatalogSchemasListsAllTools(t *testing.T) {
	catalog := NewCatalog(testEngine(t, nil), nil)
	schemas := catalog.Schemas("clinic-1")
	if len(schemas) != 4 {
		t.Fatalf("expected 4 tool schemas, got %d", len(schemas))
	}
}
