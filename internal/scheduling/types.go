// Package scheduling implements slot suggestion, hold/confirm, and
// escalation for appointment booking: the largest component of the
// system, generalizing the teacher's store/cache/backoff idioms to a
// scheduling domain instead of coding-agent state.
package scheduling

import (
	"context"
	"errors"
	"time"
)

var (
	ErrHoldNotFound              = errors.New("scheduling: hold not found")
	ErrHoldExpired               = errors.New("scheduling: hold expired")
	ErrSlotNotAvailable          = errors.New("scheduling: slot no longer available")
	ErrEscalationNotFound        = errors.New("scheduling: escalation not found")
	ErrPolicyViolation           = errors.New("scheduling: policy violation")
	ErrAppointmentNotCancellable = errors.New("scheduling: appointment not in a cancellable state")
)

// HoldTTL matches the original implementation's 5-minute hold expiry.
const HoldTTL = 5 * time.Minute

// GridMinutes is the default slot grid tick when a clinic has not
// configured one.
const GridMinutes = 15

// Slot is a candidate or confirmed appointment window.
type Slot struct {
	DoctorID      string
	RoomID        string
	ServiceID     string
	StartTime     time.Time
	EndTime       time.Time
	Score         float64
	Explanations []string
}

// Key identifies a slot for availability/dedup purposes, ignoring score.
func (s Slot) Key() string {
	return s.DoctorID + "|" + s.RoomID + "|" + s.ServiceID + "|" + s.StartTime.Format(time.RFC3339)
}

// Hold is a temporary reservation pending confirmation.
type Hold struct {
	HoldID       string
	ClientHoldID string
	Slot         Slot
	PatientID    string
	ClinicID     string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (h Hold) Expired(now time.Time) bool {
	return now.After(h.ExpiresAt)
}

// AppointmentStatus enumerates the lifecycle of a confirmed booking.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// Appointment is a confirmed booking, immutable once created except for
// its Status and calendar sync fields.
type Appointment struct {
	AppointmentID     string
	Slot              Slot
	PatientID         string
	ClinicID          string
	Status            AppointmentStatus
	PolicySnapshotID  string
	PolicyVersion     int
	PolicyBundleSHA256 string
	CalendarSynced    bool
	CalendarEventID   string
	CreatedAt         time.Time
}

// EscalationStatus enumerates the lifecycle of a human-fallback record.
type EscalationStatus string

const (
	EscalationOpen     EscalationStatus = "open"
	EscalationAssigned EscalationStatus = "assigned"
	EscalationResolved EscalationStatus = "resolved"
	EscalationDeclined EscalationStatus = "declined"
)

// RelaxationSuggestion is one auto-generated way to widen a failed search.
type RelaxationSuggestion struct {
	Description string
	DateRange   DateRange
	DropTimeOfDay bool
	DropDoctorPreference bool
}

// Escalation is a human-fallback record created when no slots survive
// filtering, or when a policy rule demands it.
type Escalation struct {
	ID           string
	ClinicID     string
	PatientID    string
	ServiceID    string
	Status       EscalationStatus
	Reason       string
	Request      SuggestRequest
	Suggestions  []RelaxationSuggestion
	SLADeadline  time.Time
	CreatedAt    time.Time
	ResolvedAt   time.Time
	DeclineReason string
}

// DateRange bounds a slot search window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// PreferenceWeights are per-clinic soft-scoring weights. They default to
// (0.3, 0.25, 0.2, 0.15, 0.1), matching the original's preference_scorer.
type PreferenceWeights struct {
	LeastBusy         float64
	PackSchedule      float64
	RoomPreference    float64
	TimeOfDay         float64
	PatientPreference float64
}

// DefaultPreferenceWeights returns the compiled-in default weighting.
func DefaultPreferenceWeights() PreferenceWeights {
	return PreferenceWeights{
		LeastBusy:         0.3,
		PackSchedule:      0.25,
		RoomPreference:    0.2,
		TimeOfDay:         0.15,
		PatientPreference: 0.1,
	}
}

// ClinicScheduleSettings bounds and configures slot enumeration for one
// clinic.
type ClinicScheduleSettings struct {
	ClinicID        string
	Timezone        *time.Location
	GridMinutes     int
	OpenHour        int // 24h clock, clinic-local
	CloseHour       int
	ServiceDuration map[string]time.Duration
	Weights         PreferenceWeights
}

// PatientPreferences narrows slot scoring toward a patient's known habits.
type PatientPreferences struct {
	PreferredDoctorID string
	PreferredRoomID   string
	PreferredHour     int // -1 if unset
}

// SuggestRequest is the SuggestSlots contract's input.
type SuggestRequest struct {
	ClinicID    string
	ServiceID   string
	PatientID   string
	DateRange   DateRange
	Preferences PatientPreferences
}

// SuggestResult is the SuggestSlots contract's output: either up to 10
// scored slots, or an escalation when none survive.
type SuggestResult struct {
	Slots      []Slot
	Escalation *Escalation
}

// HardConstraintChecker answers the availability questions SuggestSlots
// needs for each candidate (doctor, room, time) tuple. Lookup errors are
// handled asymmetrically per component: see Engine.SuggestSlots.
type HardConstraintChecker interface {
	DoctorEligibleForService(ctx context.Context, doctorID, serviceID string) (bool, error)
	DoctorWorking(ctx context.Context, doctorID string, start, end time.Time) (bool, error)
	DoctorOnTimeOff(ctx context.Context, doctorID string, start, end time.Time) (bool, error)
	RoomAvailable(ctx context.Context, roomID string, start, end time.Time) (bool, error)
	DoctorAppointmentCount(ctx context.Context, doctorID string, day time.Time) (int, error)
	NearestAppointmentGap(ctx context.Context, doctorID string, start time.Time) (time.Duration, error)
	DoctorPreferredRoom(ctx context.Context, doctorID string) (string, error)
}

// CandidateSource enumerates (doctor, room) pairs eligible to perform a
// service, before any time-based filtering.
type CandidateSource interface {
	DoctorsForService(ctx context.Context, clinicID, serviceID string) ([]string, error)
	Rooms(ctx context.Context, clinicID string) ([]string, error)
}
