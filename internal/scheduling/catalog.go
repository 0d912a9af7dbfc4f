package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dsmolchanov/clinic-scheduler/internal/llmtier"
	"github.com/dsmolchanov/clinic-scheduler/internal/toolexec"
	"github.com/dsmolchanov/clinic-scheduler/internal/tools/policy"
)

// toolNames are the scheduling operations exposed to the model, in the
// fixed order SuggestSlots -> HoldSlot -> ConfirmHold -> CancelAppointment
// maps to a patient-facing booking conversation.
const (
	ToolCheckAvailability  = "check_availability"
	ToolCreateHold         = "create_hold"
	ToolConfirmAppointment = "confirm_appointment"
	ToolCancelAppointment  = "cancel_appointment"
)

// Catalog adapts an Engine into the pipeline's ToolCatalog interface,
// building one toolexec.Executor per clinic with the clinic id bound into
// each handler's closure.
type Catalog struct {
	engine     *Engine
	resolver   *policy.Resolver
	toolPolicy *policy.Policy
	syncer     CalendarSyncer // nil unless a calendar sync backend is wired
}

// NewCatalog builds a Catalog over engine. syncer may be nil; when set, it
// is passed through to ConfirmHold for every confirm_appointment call.
func NewCatalog(engine *Engine, syncer CalendarSyncer) *Catalog {
	return &Catalog{
		engine:   engine,
		resolver: policy.NewResolver(),
		toolPolicy: &policy.Policy{
			Allow: []string{ToolCheckAvailability, ToolCreateHold, ToolConfirmAppointment, ToolCancelAppointment},
		},
		syncer: syncer,
	}
}

// Schemas returns the fixed scheduling tool schemas. They do not currently
// vary by clinic, but the clinicID parameter is kept so a future
// per-clinic feature flag (e.g. a clinic that disallows self-cancel) can
// filter the list without changing the ToolCatalog interface.
func (c *Catalog) Schemas(clinicID string) []llmtier.ToolSchema {
	return []llmtier.ToolSchema{
		{
			Name:        ToolCheckAvailability,
			Description: "Find open appointment slots for a service within a date range, optionally narrowed to a preferred doctor or time of day.",
			Parameters:  checkAvailabilitySchema,
		},
		{
			Name:        ToolCreateHold,
			Description: "Place a 5-minute hold on a specific slot returned by check_availability, so it cannot be taken by another patient while they confirm.",
			Parameters:  createHoldSchema,
		},
		{
			Name:        ToolConfirmAppointment,
			Description: "Convert an active hold into a confirmed appointment.",
			Parameters:  confirmAppointmentSchema,
		},
		{
			Name:        ToolCancelAppointment,
			Description: "Cancel a previously confirmed appointment.",
			Parameters:  cancelAppointmentSchema,
		},
	}
}

// Executor builds a toolexec.Executor scoped to one clinic. clinicID is
// baked into every handler closure so the model never needs to (and
// cannot be trusted to) pass it as an argument.
func (c *Catalog) Executor(clinicID string) *toolexec.Executor {
	return toolexec.NewExecutor(toolexec.Config{
		Specs:      c.specs(),
		Handlers:   c.handlers(clinicID),
		ToolPolicy: c.toolPolicy,
		Resolver:   c.resolver,
	})
}

func (c *Catalog) specs() map[string]toolexec.Spec {
	return map[string]toolexec.Spec{
		ToolCheckAvailability: {
			Name:            ToolCheckAvailability,
			RequiredArgs:    []string{"service", "start", "end"},
			ServiceArgField: "service",
			DoctorArgField:  "doctor",
			TimeArgField:    "start",
		},
		ToolCreateHold: {
			Name:            ToolCreateHold,
			RequiredArgs:    []string{"doctor", "room", "service", "start", "end", "patient_id", "client_hold_id"},
			Dependencies:    []string{ToolCheckAvailability},
			ServiceArgField: "service",
			DoctorArgField:  "doctor",
			TimeArgField:    "start",
		},
		ToolConfirmAppointment: {
			Name:          ToolConfirmAppointment,
			RequiredArgs:  []string{"hold_id", "patient_id", "service"},
			Dependencies:  []string{ToolCreateHold},
			CausesConfirm: true,
		},
		ToolCancelAppointment: {
			Name:          ToolCancelAppointment,
			RequiredArgs:  []string{"appointment_id"},
			CausesConfirm: true,
		},
	}
}

func (c *Catalog) handlers(clinicID string) map[string]toolexec.Handler {
	return map[string]toolexec.Handler{
		ToolCheckAvailability:  c.handleCheckAvailability(clinicID),
		ToolCreateHold:         c.handleCreateHold(clinicID),
		ToolConfirmAppointment: c.handleConfirmAppointment(clinicID),
		ToolCancelAppointment:  c.handleCancelAppointment(),
	}
}

func (c *Catalog) handleCheckAvailability(clinicID string) toolexec.Handler {
	return func(ctx context.Context, args map[string]any) (toolexec.Result, error) {
		start, err := parseArgDate(args, "start")
		if err != nil {
			return toolexec.Result{Content: err.Error(), IsError: true}, nil
		}
		end, err := parseArgDate(args, "end")
		if err != nil {
			return toolexec.Result{Content: err.Error(), IsError: true}, nil
		}

		req := SuggestRequest{
			ClinicID:  clinicID,
			ServiceID: argString(args, "service"),
			PatientID: argString(args, "patient_id"),
			DateRange: DateRange{Start: start, End: end},
			Preferences: PatientPreferences{
				PreferredDoctorID: argString(args, "doctor"),
				PreferredHour:     -1,
			},
		}

		result, err := c.engine.SuggestSlots(ctx, req)
		if err != nil {
			return toolexec.Result{}, err
		}
		if result.Escalation != nil {
			return toolexec.Result{Content: "no slots matched; an escalation has been opened for staff follow-up"}, nil
		}

		payload, err := json.Marshal(slotsToPayload(result.Slots))
		if err != nil {
			return toolexec.Result{}, err
		}
		return toolexec.Result{Content: string(payload)}, nil
	}
}

func (c *Catalog) handleCreateHold(clinicID string) toolexec.Handler {
	return func(ctx context.Context, args map[string]any) (toolexec.Result, error) {
		start, err := parseArgDate(args, "start")
		if err != nil {
			return toolexec.Result{Content: err.Error(), IsError: true}, nil
		}
		end, err := parseArgDate(args, "end")
		if err != nil {
			return toolexec.Result{Content: err.Error(), IsError: true}, nil
		}

		slot := Slot{
			DoctorID:  argString(args, "doctor"),
			RoomID:    argString(args, "room"),
			ServiceID: argString(args, "service"),
			StartTime: start,
			EndTime:   end,
		}

		hold, err := c.engine.HoldSlot(ctx, slot, argString(args, "client_hold_id"), argString(args, "patient_id"), clinicID)
		if err != nil {
			return toolexec.Result{Content: err.Error(), IsError: true}, nil
		}

		payload, err := json.Marshal(map[string]any{
			"hold_id":    hold.HoldID,
			"expires_at": hold.ExpiresAt.Format(time.RFC3339),
		})
		if err != nil {
			return toolexec.Result{}, err
		}
		return toolexec.Result{Content: string(payload)}, nil
	}
}

func (c *Catalog) handleConfirmAppointment(clinicID string) toolexec.Handler {
	return func(ctx context.Context, args map[string]any) (toolexec.Result, error) {
		result, err := c.engine.ConfirmHold(ctx, argString(args, "hold_id"), argString(args, "patient_id"), argString(args, "service"), c.syncer)
		if err != nil {
			return toolexec.Result{Content: err.Error(), IsError: true}, nil
		}

		payload, err := json.Marshal(map[string]any{
			"appointment_id": result.Appointment.AppointmentID,
			"status":         string(result.Appointment.Status),
			"start_time":     result.Appointment.Slot.StartTime.Format(time.RFC3339),
		})
		if err != nil {
			return toolexec.Result{}, err
		}
		return toolexec.Result{Content: string(payload)}, nil
	}
}

func (c *Catalog) handleCancelAppointment() toolexec.Handler {
	return func(ctx context.Context, args map[string]any) (toolexec.Result, error) {
		appt, err := c.engine.CancelAppointment(ctx, argString(args, "appointment_id"), argString(args, "reason"))
		if err != nil {
			return toolexec.Result{Content: err.Error(), IsError: true}, nil
		}
		payload, err := json.Marshal(map[string]any{
			"appointment_id": appt.AppointmentID,
			"status":         string(appt.Status),
		})
		if err != nil {
			return toolexec.Result{}, err
		}
		return toolexec.Result{Content: string(payload)}, nil
	}
}

func slotsToPayload(slots []Slot) []map[string]any {
	out := make([]map[string]any, 0, len(slots))
	for _, s := range slots {
		out = append(out, map[string]any{
			"doctor_id":  s.DoctorID,
			"room_id":    s.RoomID,
			"service_id": s.ServiceID,
			"start_time": s.StartTime.Format(time.RFC3339),
			"end_time":   s.EndTime.Format(time.RFC3339),
			"score":      s.Score,
		})
	}
	return out
}

func argString(args map[string]any, key string) string {
	v, ok := args[key].(string)
	if !ok {
		return ""
	}
	return v
}

func parseArgDate(args map[string]any, key string) (time.Time, error) {
	raw := argString(args, key)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing %s", key)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%s is not a recognized date: %q", key, raw)
}

var checkAvailabilitySchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"service": {"type": "string", "description": "service id or name the patient wants"},
		"start": {"type": "string", "description": "search window start, YYYY-MM-DD"},
		"end": {"type": "string", "description": "search window end, YYYY-MM-DD"},
		"doctor": {"type": "string", "description": "preferred doctor id, if any"},
		"patient_id": {"type": "string"}
	},
	"required": ["service", "start", "end"]
}`)

var createHoldSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"doctor": {"type": "string"},
		"room": {"type": "string"},
		"service": {"type": "string"},
		"start": {"type": "string", "description": "slot start time, RFC3339"},
		"end": {"type": "string", "description": "slot end time, RFC3339"},
		"patient_id": {"type": "string"},
		"client_hold_id": {"type": "string", "description": "idempotency key for this hold attempt"}
	},
	"required": ["doctor", "room", "service", "start", "end", "patient_id", "client_hold_id"]
}`)

var confirmAppointmentSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"hold_id": {"type": "string"},
		"patient_id": {"type": "string"},
		"service": {"type": "string"}
	},
	"required": ["hold_id", "patient_id", "service"]
}`)

var cancelAppointmentSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"appointment_id": {"type": "string"},
		"reason": {"type": "string"}
	},
	"required": ["appointment_id"]
}`)
