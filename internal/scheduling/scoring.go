package scheduling

import (
	"context"
	"time"
)

// explanationThreshold is the per-component score above which an
// explanation string is attached, matching preference_scorer.py's
// generate_explanations cutoff.
const explanationThreshold = 0.6

// scoreComponents computes each weighted soft-scoring factor for one
// candidate slot and returns the 0-1 components alongside the weighted
// 0-100 total.
type scoreComponents struct {
	leastBusy         float64
	packSchedule      float64
	roomPreference    float64
	timeOfDay         float64
	patientPreference float64
}

func (e *Engine) scoreSlot(ctx context.Context, slot Slot, weights PreferenceWeights, prefs PatientPreferences) (float64, []string, error) {
	var c scoreComponents

	count, err := e.checker.DoctorAppointmentCount(ctx, slot.DoctorID, slot.StartTime)
	if err != nil {
		count = 0
	}
	c.leastBusy = leastBusyScore(count)

	gap, err := e.checker.NearestAppointmentGap(ctx, slot.DoctorID, slot.StartTime)
	if err != nil {
		gap = 0
	}
	c.packSchedule = packScheduleScore(gap)

	preferredRoom, err := e.checker.DoctorPreferredRoom(ctx, slot.DoctorID)
	if err == nil && preferredRoom != "" && preferredRoom == slot.RoomID {
		c.roomPreference = 1.0
	}

	c.timeOfDay = timeOfDayScore(slot.StartTime, prefs.PreferredHour)

	if prefs.PreferredDoctorID != "" && prefs.PreferredDoctorID == slot.DoctorID {
		c.patientPreference = 1.0
	}

	weighted := c.leastBusy*weights.LeastBusy +
		c.packSchedule*weights.PackSchedule +
		c.roomPreference*weights.RoomPreference +
		c.timeOfDay*weights.TimeOfDay +
		c.patientPreference*weights.PatientPreference

	explanations := explainComponents(c)
	return weighted * 100, explanations, nil
}

func explainComponents(c scoreComponents) []string {
	var out []string
	if c.leastBusy > explanationThreshold {
		out = append(out, "doctor has a light schedule that day")
	}
	if c.packSchedule > explanationThreshold {
		out = append(out, "fits closely after an existing appointment")
	}
	if c.roomPreference > explanationThreshold {
		out = append(out, "in the doctor's usual room")
	}
	if c.timeOfDay > explanationThreshold {
		out = append(out, "matches your preferred time of day")
	}
	if c.patientPreference > explanationThreshold {
		out = append(out, "with your preferred doctor")
	}
	return out
}

// leastBusyScore rewards doctors with fewer same-day appointments; scaled
// against a soft cap of 12 appointments/day.
func leastBusyScore(count int) float64 {
	const softCap = 12.0
	score := 1.0 - float64(count)/softCap
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// packScheduleScore rewards slots close to an existing appointment,
// decaying linearly to zero at 2 hours of gap.
func packScheduleScore(gap time.Duration) float64 {
	const maxGap = 2 * time.Hour
	if gap <= 0 {
		return 1
	}
	if gap >= maxGap {
		return 0
	}
	return 1 - float64(gap)/float64(maxGap)
}

// timeOfDayScore rewards slots near a patient's preferred hour, or
// defaults to favoring mid-morning/early-afternoon when no preference is
// set.
func timeOfDayScore(start time.Time, preferredHour int) float64 {
	hour := start.Hour()
	target := preferredHour
	if target < 0 {
		target = 10
	}
	diff := hour - target
	if diff < 0 {
		diff = -diff
	}
	score := 1 - float64(diff)/6.0
	if score < 0 {
		return 0
	}
	return score
}
