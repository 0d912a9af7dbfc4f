package scheduling

import (
	"context"
	"sync"
	"time"
)

// HoldStore persists Holds, reachable by either server id or client hold
// id per I5.
type HoldStore interface {
	Create(ctx context.Context, hold *Hold) error
	Get(ctx context.Context, holdID string) (*Hold, error)
	GetByClientID(ctx context.Context, clientHoldID string) (*Hold, error)
	Delete(ctx context.Context, holdID string) error
}

// AppointmentStore persists confirmed Appointments.
type AppointmentStore interface {
	Create(ctx context.Context, appt *Appointment) error
	Get(ctx context.Context, appointmentID string) (*Appointment, error)
	Update(ctx context.Context, appt *Appointment) error
}

// EscalationStore persists Escalations and supports the dedupe lookup
// createEscalation needs.
type EscalationStore interface {
	Create(ctx context.Context, esc *Escalation) error
	Get(ctx context.Context, id string) (*Escalation, error)
	Update(ctx context.Context, esc *Escalation) error
	FindRecentOpen(ctx context.Context, patientID, serviceID string, within time.Duration) (*Escalation, error)
	PastSLA(ctx context.Context, now time.Time) ([]*Escalation, error)
	// PendingForPatient returns the most recent open escalation for a
	// patient in a clinic, regardless of service, backing the pipeline's
	// EscalationChecker.
	PendingForPatient(ctx context.Context, clinicID, patientID string) (*Escalation, error)
}

// MemoryHoldStore is an in-process HoldStore for tests and single-node
// deployments.
type MemoryHoldStore struct {
	mu    sync.Mutex
	byID  map[string]*Hold
	byCli map[string]string // clientHoldID -> holdID
}

func NewMemoryHoldStore() *MemoryHoldStore {
	return &MemoryHoldStore{byID: make(map[string]*Hold), byCli: make(map[string]string)}
}

func (s *MemoryHoldStore) Create(ctx context.Context, hold *Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *hold
	s.byID[hold.HoldID] = &cp
	if hold.ClientHoldID != "" {
		s.byCli[hold.ClientHoldID] = hold.HoldID
	}
	return nil
}

func (s *MemoryHoldStore) Get(ctx context.Context, holdID string) (*Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byID[holdID]
	if !ok {
		return nil, ErrHoldNotFound
	}
	cp := *h
	return &cp, nil
}

func (s *MemoryHoldStore) GetByClientID(ctx context.Context, clientHoldID string) (*Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCli[clientHoldID]
	if !ok {
		return nil, ErrHoldNotFound
	}
	h, ok := s.byID[id]
	if !ok {
		return nil, ErrHoldNotFound
	}
	cp := *h
	return &cp, nil
}

func (s *MemoryHoldStore) Delete(ctx context.Context, holdID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byID[holdID]
	if ok && h.ClientHoldID != "" {
		delete(s.byCli, h.ClientHoldID)
	}
	delete(s.byID, holdID)
	return nil
}

// MemoryAppointmentStore is an in-process AppointmentStore for tests.
type MemoryAppointmentStore struct {
	mu    sync.Mutex
	byID  map[string]*Appointment
}

func NewMemoryAppointmentStore() *MemoryAppointmentStore {
	return &MemoryAppointmentStore{byID: make(map[string]*Appointment)}
}

func (s *MemoryAppointmentStore) Create(ctx context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *appt
	s.byID[appt.AppointmentID] = &cp
	return nil
}

func (s *MemoryAppointmentStore) Get(ctx context.Context, appointmentID string) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[appointmentID]
	if !ok {
		return nil, ErrHoldNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryAppointmentStore) Update(ctx context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[appt.AppointmentID]; !ok {
		return ErrHoldNotFound
	}
	cp := *appt
	s.byID[appt.AppointmentID] = &cp
	return nil
}

// countForDoctorOnDay counts scheduled appointments for doctorID on day's
// calendar date, in the slot's own timezone. Backs MemoryDirectory's
// DoctorAppointmentCount so least-busy scoring sees real bookings.
func (s *MemoryAppointmentStore) countForDoctorOnDay(doctorID string, day time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	y, m, d := day.Date()
	n := 0
	for _, a := range s.byID {
		if a.Status != AppointmentScheduled || a.Slot.DoctorID != doctorID {
			continue
		}
		ay, am, ad := a.Slot.StartTime.Date()
		if ay == y && am == m && ad == d {
			n++
		}
	}
	return n
}

// nearestGap returns the smallest distance between start and any existing
// scheduled appointment for doctorID, backing MemoryDirectory's
// NearestAppointmentGap.
func (s *MemoryAppointmentStore) nearestGap(doctorID string, start time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	nearest := 24 * time.Hour
	for _, a := range s.byID {
		if a.Status != AppointmentScheduled || a.Slot.DoctorID != doctorID {
			continue
		}
		d := a.Slot.StartTime.Sub(start)
		if d < 0 {
			d = -d
		}
		if d < nearest {
			nearest = d
		}
	}
	return nearest
}

// windowsForRoom returns the booked time windows for a room, backing
// MemoryDirectory's RoomAvailable.
func (s *MemoryAppointmentStore) windowsForRoom(roomID string) []DateRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	var windows []DateRange
	for _, a := range s.byID {
		if a.Status != AppointmentScheduled || a.Slot.RoomID != roomID {
			continue
		}
		windows = append(windows, DateRange{Start: a.Slot.StartTime, End: a.Slot.EndTime})
	}
	return windows
}

// MemoryEscalationStore is an in-process EscalationStore for tests.
type MemoryEscalationStore struct {
	mu   sync.Mutex
	byID map[string]*Escalation
}

func NewMemoryEscalationStore() *MemoryEscalationStore {
	return &MemoryEscalationStore{byID: make(map[string]*Escalation)}
}

func (s *MemoryEscalationStore) Create(ctx context.Context, esc *Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *esc
	s.byID[esc.ID] = &cp
	return nil
}

func (s *MemoryEscalationStore) Get(ctx context.Context, id string) (*Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, ErrEscalationNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryEscalationStore) Update(ctx context.Context, esc *Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[esc.ID]; !ok {
		return ErrEscalationNotFound
	}
	cp := *esc
	s.byID[esc.ID] = &cp
	return nil
}

func (s *MemoryEscalationStore) FindRecentOpen(ctx context.Context, patientID, serviceID string, within time.Duration) (*Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-within)
	for _, e := range s.byID {
		if e.PatientID == patientID && e.ServiceID == serviceID && e.Status == EscalationOpen && e.CreatedAt.After(cutoff) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrEscalationNotFound
}

func (s *MemoryEscalationStore) PendingForPatient(ctx context.Context, clinicID, patientID string) (*Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Escalation
	for _, e := range s.byID {
		if e.ClinicID != clinicID || e.PatientID != patientID || e.Status != EscalationOpen {
			continue
		}
		if best == nil || e.CreatedAt.After(best.CreatedAt) {
			cp := *e
			best = &cp
		}
	}
	if best == nil {
		return nil, ErrEscalationNotFound
	}
	return best, nil
}

func (s *MemoryEscalationStore) PastSLA(ctx context.Context, now time.Time) ([]*Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Escalation
	for _, e := range s.byID {
		if e.Status == EscalationOpen && now.After(e.SLADeadline) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
