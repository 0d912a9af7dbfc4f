package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/dsmolchanov/clinic-scheduler/internal/audit"
	"github.com/dsmolchanov/clinic-scheduler/internal/rules"
)

// Engine implements the Scheduling Engine: slot suggestion, holds, and
// confirm.
type Engine struct {
	candidates CandidateSource
	checker    HardConstraintChecker
	settings   SettingsSource
	holds      HoldStore
	appts      AppointmentStore
	escalations EscalationStore
	limiter    *LimitReserver
	clock      func() time.Time
	audit      *audit.Logger
}

// SetAuditLogger attaches an audit logger for escalation and appointment
// lifecycle events. Optional; a nil logger (the default) disables it.
func (e *Engine) SetAuditLogger(logger *audit.Logger) {
	e.audit = logger
}

// SettingsSource loads per-clinic scheduling settings with its own caching.
type SettingsSource interface {
	Settings(ctx context.Context, clinicID string) (ClinicScheduleSettings, error)
	Policy(ctx context.Context, clinicID string) (*rules.CompiledPolicy, error)
}

// NewEngine wires an Engine from its collaborators.
func NewEngine(candidates CandidateSource, checker HardConstraintChecker, settings SettingsSource, holds HoldStore, appts AppointmentStore, escalations EscalationStore) *Engine {
	return &Engine{
		candidates:  candidates,
		checker:     checker,
		settings:    settings,
		holds:       holds,
		appts:       appts,
		escalations: escalations,
		limiter:     NewLimitReserver(),
		clock:       time.Now,
	}
}

const maxSuggestedSlots = 10

// SuggestSlots enumerates, filters, and scores candidate slots for a
// request, returning up to 10 ranked slots or an Escalation if none
// survive.
func (e *Engine) SuggestSlots(ctx context.Context, req SuggestRequest) (*SuggestResult, error) {
	settings, err := e.settings.Settings(ctx, req.ClinicID)
	if err != nil {
		return nil, err
	}
	policy, err := e.settings.Policy(ctx, req.ClinicID)
	if err != nil {
		return nil, err
	}

	raw, err := e.enumerate(ctx, req, settings)
	if err != nil {
		return nil, err
	}

	filtered, err := e.filterHardConstraints(ctx, raw, req.ServiceID)
	if err != nil {
		return nil, err
	}

	gated, escalate, err := e.filterPolicy(ctx, filtered, policy, req)
	if err != nil {
		return nil, err
	}
	if escalate != nil {
		esc, err := e.createEscalation(ctx, req, escalate.Message)
		if err != nil {
			return nil, err
		}
		return &SuggestResult{Escalation: esc}, nil
	}

	scored := make([]Slot, 0, len(gated))
	for _, slot := range gated {
		score, explanations, err := e.scoreSlot(ctx, slot, settings.Weights, req.Preferences)
		if err != nil {
			return nil, err
		}
		slot.Score = score
		slot.Explanations = explanations
		slot = applySoftRules(slot, policy.SoftRules, slotContext(slot, req))
		scored = append(scored, slot)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > maxSuggestedSlots {
		scored = scored[:maxSuggestedSlots]
	}

	if len(scored) == 0 {
		esc, err := e.createEscalation(ctx, req, "no slots survived filtering")
		if err != nil {
			return nil, err
		}
		return &SuggestResult{Escalation: esc}, nil
	}

	return &SuggestResult{Slots: scored}, nil
}

func (e *Engine) enumerate(ctx context.Context, req SuggestRequest, settings ClinicScheduleSettings) ([]Slot, error) {
	doctors, err := e.candidates.DoctorsForService(ctx, req.ClinicID, req.ServiceID)
	if err != nil {
		return nil, err
	}
	rooms, err := e.candidates.Rooms(ctx, req.ClinicID)
	if err != nil {
		return nil, err
	}

	duration := settings.ServiceDuration[req.ServiceID]
	if duration <= 0 {
		duration = 30 * time.Minute
	}
	grid := settings.GridMinutes
	if grid <= 0 {
		grid = GridMinutes
	}
	loc := settings.Timezone
	if loc == nil {
		loc = time.UTC
	}

	var slots []Slot
	for day := req.DateRange.Start; !day.After(req.DateRange.End); day = day.AddDate(0, 0, 1) {
		dayLocal := day.In(loc)
		open := time.Date(dayLocal.Year(), dayLocal.Month(), dayLocal.Day(), settings.OpenHour, 0, 0, 0, loc)
		closeT := time.Date(dayLocal.Year(), dayLocal.Month(), dayLocal.Day(), settings.CloseHour, 0, 0, 0, loc)

		for tick := open; tick.Add(duration).Before(closeT) || tick.Add(duration).Equal(closeT); tick = tick.Add(time.Duration(grid) * time.Minute) {
			for _, doctorID := range doctors {
				for _, roomID := range rooms {
					slots = append(slots, Slot{
						DoctorID:  doctorID,
						RoomID:    roomID,
						ServiceID: req.ServiceID,
						StartTime: tick,
						EndTime:   tick.Add(duration),
					})
				}
			}
		}
	}
	return slots, nil
}

// filterHardConstraints applies working-hours, time-off, room, and
// eligibility checks. Lookup failures are asymmetric by design: time-off
// lookups fail open (assume available), room and eligibility lookups fail
// closed (assume unavailable/ineligible).
func (e *Engine) filterHardConstraints(ctx context.Context, slots []Slot, serviceID string) ([]Slot, error) {
	out := make([]Slot, 0, len(slots))
	for _, slot := range slots {
		eligible, err := e.checker.DoctorEligibleForService(ctx, slot.DoctorID, serviceID)
		if err != nil {
			continue // fail closed: ineligible
		}
		if !eligible {
			continue
		}

		working, err := e.checker.DoctorWorking(ctx, slot.DoctorID, slot.StartTime, slot.EndTime)
		if err != nil || !working {
			continue
		}

		onTimeOff, err := e.checker.DoctorOnTimeOff(ctx, slot.DoctorID, slot.StartTime, slot.EndTime)
		if err != nil {
			onTimeOff = false // fail open: assume available
		}
		if onTimeOff {
			continue
		}

		available, err := e.checker.RoomAvailable(ctx, slot.RoomID, slot.StartTime, slot.EndTime)
		if err != nil {
			continue // fail closed: assume unavailable
		}
		if !available {
			continue
		}

		out = append(out, slot)
	}
	return out, nil
}

// policyEscalation is returned by filterPolicy when an ESCALATE rule
// matched.
type policyEscalation struct {
	Message string
}

func (e *Engine) filterPolicy(ctx context.Context, slots []Slot, policy *rules.CompiledPolicy, req SuggestRequest) ([]Slot, *policyEscalation, error) {
	out := make([]Slot, 0, len(slots))
	for _, slot := range slots {
		evalCtx := slotContext(slot, req)
		keep := true
		for _, rule := range policy.HardRules {
			matched, err := rules.Evaluate(rule.Conditions, evalCtx)
			if err != nil {
				return nil, nil, err
			}
			if !matched {
				continue
			}
			switch rule.Effect {
			case rulesDeny:
				keep = false
			case rulesRequireField:
				if v, ok := evalCtx.Lookup(rule.Field); !ok || isFalsy(v) {
					keep = false
				}
			case rulesEscalate:
				return nil, &policyEscalation{Message: rule.Message}, nil
			}
			if !keep {
				break
			}
		}
		if keep {
			out = append(out, slot)
		}
	}
	return out, nil, nil
}

func applySoftRules(slot Slot, softRules []rules.Rule, ctx rules.EvalContext) Slot {
	for _, rule := range softRules {
		matched, err := rules.Evaluate(rule.Conditions, ctx)
		if err != nil || !matched {
			continue
		}
		switch rule.Effect {
		case rulesAdjustScore:
			slot.Score += rule.Delta
		case rulesWarn:
			if rule.Message != "" {
				slot.Explanations = append(slot.Explanations, rule.Message)
			}
		}
	}
	return slot
}

// re-exported effect constants to keep this file's switch statements
// readable without a rules. prefix repeated on every case.
const (
	rulesDeny         = rules.EffectDeny
	rulesEscalate     = rules.EffectEscalate
	rulesRequireField = rules.EffectRequireField
	rulesAdjustScore  = rules.EffectAdjustScore
	rulesWarn         = rules.EffectWarn
)

func slotContext(slot Slot, req SuggestRequest) rules.EvalContext {
	return rules.EvalContext{
		"slot": map[string]any{
			"doctor_id":  slot.DoctorID,
			"room_id":    slot.RoomID,
			"service_id": slot.ServiceID,
			"start_hour": slot.StartTime.Hour(),
			"weekday":    int(slot.StartTime.Weekday()),
		},
		"request": map[string]any{
			"clinic_id":  req.ClinicID,
			"patient_id": req.PatientID,
			"service_id": req.ServiceID,
		},
	}
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case bool:
		return !t
	case string:
		return t == ""
	case nil:
		return true
	default:
		return false
	}
}
