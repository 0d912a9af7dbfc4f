package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/dsmolchanov/clinic-scheduler/internal/rules"
)

// DoctorRoster is one doctor's bookable profile, loaded once at startup
// from clinic configuration.
type DoctorRoster struct {
	DoctorID      string
	ServiceIDs    []string
	PreferredRoom string
	TimeOff       []DateRange
}

// MemoryDirectory is an in-process CandidateSource and
// HardConstraintChecker for single-node deployments and local development,
// backed by a configured roster plus the same AppointmentStore the Engine
// already writes to, so room/doctor conflicts reflect real bookings rather
// than a second, divergent copy of schedule state.
type MemoryDirectory struct {
	mu      sync.RWMutex
	doctors map[string]DoctorRoster
	rooms   []string
	appts   AppointmentStore
	clock   func() time.Time
}

// NewMemoryDirectory builds a MemoryDirectory over a configured roster.
// appts may be nil, in which case DoctorAppointmentCount/NearestAppointmentGap
// always report an empty schedule and RoomAvailable always reports free.
func NewMemoryDirectory(roster []DoctorRoster, rooms []string, appts AppointmentStore) *MemoryDirectory {
	d := &MemoryDirectory{
		doctors: make(map[string]DoctorRoster, len(roster)),
		rooms:   append([]string(nil), rooms...),
		appts:   appts,
		clock:   time.Now,
	}
	for _, r := range roster {
		d.doctors[r.DoctorID] = r
	}
	return d
}

func (d *MemoryDirectory) DoctorsForService(ctx context.Context, clinicID, serviceID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	for id, r := range d.doctors {
		for _, svc := range r.ServiceIDs {
			if svc == serviceID {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

func (d *MemoryDirectory) Rooms(ctx context.Context, clinicID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.rooms...), nil
}

func (d *MemoryDirectory) DoctorEligibleForService(ctx context.Context, doctorID, serviceID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.doctors[doctorID]
	if !ok {
		return false, nil
	}
	for _, svc := range r.ServiceIDs {
		if svc == serviceID {
			return true, nil
		}
	}
	return false, nil
}

// DoctorWorking always reports true: working-hours filtering already
// happened in the slot grid enumeration (Engine reads OpenHour/CloseHour
// from SettingsSource), so the checker only needs to veto time off.
func (d *MemoryDirectory) DoctorWorking(ctx context.Context, doctorID string, start, end time.Time) (bool, error) {
	return true, nil
}

func (d *MemoryDirectory) DoctorOnTimeOff(ctx context.Context, doctorID string, start, end time.Time) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.doctors[doctorID]
	if !ok {
		return false, nil
	}
	for _, off := range r.TimeOff {
		if start.Before(off.End) && end.After(off.Start) {
			return true, nil
		}
	}
	return false, nil
}

func (d *MemoryDirectory) RoomAvailable(ctx context.Context, roomID string, start, end time.Time) (bool, error) {
	if d.appts == nil {
		return true, nil
	}
	booked, err := d.roomBookedWindows(ctx, roomID)
	if err != nil {
		return false, err
	}
	for _, window := range booked {
		if start.Before(window.End) && end.After(window.Start) {
			return false, nil
		}
	}
	return true, nil
}

func (d *MemoryDirectory) DoctorAppointmentCount(ctx context.Context, doctorID string, day time.Time) (int, error) {
	if d.appts == nil {
		return 0, nil
	}
	store, ok := d.appts.(*MemoryAppointmentStore)
	if !ok {
		return 0, nil
	}
	return store.countForDoctorOnDay(doctorID, day), nil
}

func (d *MemoryDirectory) NearestAppointmentGap(ctx context.Context, doctorID string, start time.Time) (time.Duration, error) {
	if d.appts == nil {
		return 24 * time.Hour, nil
	}
	store, ok := d.appts.(*MemoryAppointmentStore)
	if !ok {
		return 24 * time.Hour, nil
	}
	return store.nearestGap(doctorID, start), nil
}

func (d *MemoryDirectory) DoctorPreferredRoom(ctx context.Context, doctorID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doctors[doctorID].PreferredRoom, nil
}

func (d *MemoryDirectory) roomBookedWindows(ctx context.Context, roomID string) ([]DateRange, error) {
	store, ok := d.appts.(*MemoryAppointmentStore)
	if !ok {
		return nil, nil
	}
	return store.windowsForRoom(roomID), nil
}

// MemorySettingsSource is a config-seeded SettingsSource for single-node
// deployments: one ClinicScheduleSettings and one CompiledPolicy per
// clinic, loaded at startup rather than queried from a policy store.
type MemorySettingsSource struct {
	mu       sync.RWMutex
	settings map[string]ClinicScheduleSettings
	policies map[string]*rules.CompiledPolicy
}

// NewMemorySettingsSource builds an empty MemorySettingsSource.
func NewMemorySettingsSource() *MemorySettingsSource {
	return &MemorySettingsSource{
		settings: make(map[string]ClinicScheduleSettings),
		policies: make(map[string]*rules.CompiledPolicy),
	}
}

// Put registers a clinic's settings and compiled policy.
func (s *MemorySettingsSource) Put(settings ClinicScheduleSettings, policy *rules.CompiledPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settings.ClinicID] = settings
	s.policies[settings.ClinicID] = policy
}

func (s *MemorySettingsSource) Settings(ctx context.Context, clinicID string) (ClinicScheduleSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings, ok := s.settings[clinicID]
	if !ok {
		return ClinicScheduleSettings{}, ErrPolicyViolation
	}
	return settings, nil
}

func (s *MemorySettingsSource) Policy(ctx context.Context, clinicID string) (*rules.CompiledPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policies[clinicID], nil
}
