package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dsmolchanov/clinic-scheduler/internal/rules"
)

// HoldSlot creates a Hold row with a 5-minute TTL. If a non-expired Hold
// already exists with the same clientHoldID, it is returned unchanged.
func (e *Engine) HoldSlot(ctx context.Context, slot Slot, clientHoldID, patientID, clinicID string) (*Hold, error) {
	if existing, err := e.holds.GetByClientID(ctx, clientHoldID); err == nil && existing != nil {
		if !existing.Expired(e.clock()) {
			return existing, nil
		}
	}

	available, err := e.checker.RoomAvailable(ctx, slot.RoomID, slot.StartTime, slot.EndTime)
	if err != nil || !available {
		return nil, ErrSlotNotAvailable
	}

	now := e.clock()
	hold := &Hold{
		HoldID:       uuid.NewString(),
		ClientHoldID: clientHoldID,
		Slot:         slot,
		PatientID:    patientID,
		ClinicID:     clinicID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(HoldTTL),
	}
	if err := e.holds.Create(ctx, hold); err != nil {
		return nil, err
	}
	return hold, nil
}

// ConfirmResult is the outcome of a successful ConfirmHold call.
type ConfirmResult struct {
	Appointment     Appointment
	CalendarSynced  bool
	CalendarEventID string
}

// CalendarSyncer attempts to mirror a confirmed appointment into an
// external calendar. ConfirmHold does not log a failure; it leaves
// CalendarSynced false and never fails the confirm itself.
type CalendarSyncer interface {
	SyncAppointment(ctx context.Context, appt Appointment) (eventID string, err error)
}

// ConfirmHold verifies ownership and freshness, re-runs the hard-rule
// gate, reserves any LIMIT_OCCURRENCE counters, inserts the Appointment,
// and deletes the Hold. Calendar sync is then attempted synchronously,
// within this call; a sync error is not logged or returned and never fails
// the confirm.
func (e *Engine) ConfirmHold(ctx context.Context, holdID, patientID, serviceID string, syncer CalendarSyncer) (*ConfirmResult, error) {
	hold, err := e.holds.Get(ctx, holdID)
	if err != nil {
		return nil, ErrHoldNotFound
	}
	if hold.PatientID != patientID {
		return nil, ErrHoldNotFound
	}
	if hold.Expired(e.clock()) {
		return nil, ErrHoldExpired
	}

	policy, err := e.settings.Policy(ctx, hold.ClinicID)
	if err != nil {
		return nil, err
	}

	req := SuggestRequest{ClinicID: hold.ClinicID, ServiceID: serviceID, PatientID: patientID}
	evalCtx := slotContext(hold.Slot, req)

	var reserved []reservedToken
	for _, rule := range policy.HardRules {
		matched, err := rules.Evaluate(rule.Conditions, evalCtx)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		switch rule.Effect {
		case rulesDeny:
			e.releaseAll(reserved)
			return nil, ErrPolicyViolation
		case rulesRequireField:
			if v, ok := evalCtx.Lookup(rule.Field); !ok || isFalsy(v) {
				e.releaseAll(reserved)
				return nil, ErrPolicyViolation
			}
		case rulesLimitOccurrence:
			window := time.Duration(rule.WindowSecs) * time.Second
			token := uuid.NewString()
			key := fmt.Sprintf("%s:%s", hold.ClinicID, rule.ID)
			allowed, _ := e.limiter.Reserve(key, token, rule.MaxN, window)
			if !allowed {
				e.releaseAll(reserved)
				return nil, ErrPolicyViolation
			}
			reserved = append(reserved, reservedToken{key: key, token: token})
		}
	}

	appt := Appointment{
		AppointmentID:      uuid.NewString(),
		Slot:               hold.Slot,
		PatientID:          patientID,
		ClinicID:           hold.ClinicID,
		Status:             AppointmentScheduled,
		PolicySnapshotID:   policy.BundleID,
		PolicyBundleSHA256: policy.Digest,
		CreatedAt:          e.clock(),
	}

	if err := e.appts.Create(ctx, &appt); err != nil {
		e.releaseAll(reserved)
		return nil, err
	}

	if err := e.holds.Delete(ctx, hold.HoldID); err != nil {
		return nil, err
	}

	result := &ConfirmResult{Appointment: appt}
	if syncer != nil {
		if eventID, err := syncer.SyncAppointment(ctx, appt); err == nil {
			result.CalendarSynced = true
			result.CalendarEventID = eventID
		}
	}
	if e.audit != nil {
		e.audit.LogAppointmentConfirmed(ctx, appt.AppointmentID, appt.ClinicID, appt.PatientID, appt.PolicySnapshotID)
	}
	return result, nil
}

// CancelAppointment marks a scheduled Appointment cancelled. Cancelling an
// appointment that is already cancelled or completed returns
// ErrAppointmentNotCancellable rather than silently succeeding.
func (e *Engine) CancelAppointment(ctx context.Context, appointmentID, reason string) (*Appointment, error) {
	appt, err := e.appts.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != AppointmentScheduled {
		return nil, ErrAppointmentNotCancellable
	}
	appt.Status = AppointmentCancelled
	if err := e.appts.Update(ctx, appt); err != nil {
		return nil, err
	}
	if e.audit != nil {
		e.audit.LogAppointmentCancelled(ctx, appt.AppointmentID, reason)
	}
	return appt, nil
}

type reservedToken struct {
	key   string
	token string
}

func (e *Engine) releaseAll(tokens []reservedToken) {
	for _, t := range tokens {
		e.limiter.Release(t.key, t.token)
	}
}

const rulesLimitOccurrence = rules.EffectLimitOccurrence
