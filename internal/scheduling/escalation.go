package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EscalationSLA is the default time an escalation has before the SLA sweep
// flags it for operator attention.
const EscalationSLA = 24 * time.Hour

// dedupeWindow suppresses a duplicate escalation for the same
// (patient, service) within this window.
const dedupeWindow = 24 * time.Hour

// createEscalation builds an Escalation with up to 5 auto-generated
// relaxation suggestions, suppressing duplicates against an existing open
// escalation for the same (patient, service) within 24 hours.
func (e *Engine) createEscalation(ctx context.Context, req SuggestRequest, reason string) (*Escalation, error) {
	existing, err := e.escalations.FindRecentOpen(ctx, req.PatientID, req.ServiceID, dedupeWindow)
	if err == nil && existing != nil {
		return existing, nil
	}

	esc := &Escalation{
		ID:          uuid.NewString(),
		ClinicID:    req.ClinicID,
		PatientID:   req.PatientID,
		ServiceID:   req.ServiceID,
		Status:      EscalationOpen,
		Reason:      reason,
		Request:     req,
		Suggestions: relaxationSuggestions(req),
		SLADeadline: e.clock().Add(EscalationSLA),
		CreatedAt:   e.clock(),
	}
	if err := e.escalations.Create(ctx, esc); err != nil {
		return nil, err
	}
	if e.audit != nil {
		e.audit.LogEscalationCreated(ctx, esc.ID, esc.ClinicID, esc.PatientID, esc.ServiceID, reason)
	}
	return esc, nil
}

// EscalationGate implements the pipeline's EscalationChecker over an
// EscalationStore: while a patient has an open escalation, the pipeline
// shows a holding message instead of resuming normal routing.
type EscalationGate struct {
	store EscalationStore
}

// NewEscalationGate wraps store as a pipeline.EscalationChecker.
func NewEscalationGate(store EscalationStore) *EscalationGate {
	return &EscalationGate{store: store}
}

// PendingMessage reports whether clinicID/patientID has an open escalation
// and, if so, a holding message naming it.
func (g *EscalationGate) PendingMessage(ctx context.Context, clinicID, patientID string) (string, bool) {
	esc, err := g.store.PendingForPatient(ctx, clinicID, patientID)
	if err != nil || esc == nil {
		return "", false
	}
	return "A team member is already looking into your request and will follow up shortly.", true
}

// relaxationSuggestions generates up to 5 ways to widen a failed search,
// in a fixed order: expand +3d, drop time-of-day, drop doctor preference,
// expand +7d, fully relaxed 14-day window.
func relaxationSuggestions(req SuggestRequest) []RelaxationSuggestion {
	base := req.DateRange.Start
	suggestions := []RelaxationSuggestion{
		{
			Description: "expand the search window by 3 days",
			DateRange:   DateRange{Start: base, End: req.DateRange.End.AddDate(0, 0, 3)},
		},
		{
			Description:   "drop the time-of-day preference",
			DateRange:     req.DateRange,
			DropTimeOfDay: true,
		},
		{
			Description:          "drop the doctor preference",
			DateRange:            req.DateRange,
			DropDoctorPreference: true,
		},
		{
			Description: "expand the search window by 7 days",
			DateRange:   DateRange{Start: base, End: req.DateRange.End.AddDate(0, 0, 7)},
		},
		{
			Description:          "fully relaxed 14-day window",
			DateRange:            DateRange{Start: base, End: base.AddDate(0, 0, 14)},
			DropTimeOfDay:        true,
			DropDoctorPreference: true,
		},
	}
	return suggestions
}

// ResolveEscalation drives confirm through a chosen relaxation suggestion
// index or a manually selected slot.
func (e *Engine) ResolveEscalation(ctx context.Context, escalationID string, suggestionIndex int, manual *Slot, clientHoldID string) (*Hold, error) {
	esc, err := e.escalations.Get(ctx, escalationID)
	if err != nil {
		return nil, ErrEscalationNotFound
	}

	var slot Slot
	if manual != nil {
		slot = *manual
	} else {
		if suggestionIndex < 0 || suggestionIndex >= len(esc.Suggestions) {
			return nil, ErrEscalationNotFound
		}
		suggestion := esc.Suggestions[suggestionIndex]
		req := esc.Request
		req.DateRange = suggestion.DateRange
		if suggestion.DropTimeOfDay {
			req.Preferences.PreferredHour = -1
		}
		if suggestion.DropDoctorPreference {
			req.Preferences.PreferredDoctorID = ""
		}
		result, err := e.SuggestSlots(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(result.Slots) == 0 {
			return nil, ErrSlotNotAvailable
		}
		slot = result.Slots[0]
	}

	hold, err := e.HoldSlot(ctx, slot, clientHoldID, esc.PatientID, esc.ClinicID)
	if err != nil {
		return nil, err
	}

	esc.Status = EscalationAssigned
	esc.ResolvedAt = e.clock()
	if err := e.escalations.Update(ctx, esc); err != nil {
		return nil, err
	}
	if e.audit != nil {
		e.audit.LogEscalationResolved(ctx, esc.ID, string(esc.Status), "")
	}
	return hold, nil
}

// DeclineEscalation records a decline reason without driving a booking.
func (e *Engine) DeclineEscalation(ctx context.Context, escalationID, reason string) error {
	esc, err := e.escalations.Get(ctx, escalationID)
	if err != nil {
		return ErrEscalationNotFound
	}
	esc.Status = EscalationDeclined
	esc.DeclineReason = reason
	esc.ResolvedAt = e.clock()
	if err := e.escalations.Update(ctx, esc); err != nil {
		return err
	}
	if e.audit != nil {
		e.audit.LogEscalationResolved(ctx, esc.ID, string(esc.Status), reason)
	}
	return nil
}
