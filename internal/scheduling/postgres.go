package scheduling

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresConfig configures the connection pool backing the Postgres
// stores, matching the teacher's CockroachConfig pool-sizing shape
// (internal/tasks/cockroach.go).
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig mirrors the teacher's DefaultCockroachConfig.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// OpenPostgres opens and pings a connection pool for the scheduling
// stores below, following the teacher's open-then-ping-with-timeout
// sequence for CockroachDB.
func OpenPostgres(dsn string, cfg PostgresConfig) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("scheduling: dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("scheduling: open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("scheduling: ping database: %w", err)
	}
	return db, nil
}

// PostgresHoldStore persists Holds in a `holds` table, keyed by hold id
// with a unique index on client_hold_id for the idempotent-create lookup
// I5 requires.
type PostgresHoldStore struct {
	db *sql.DB
}

func NewPostgresHoldStore(db *sql.DB) *PostgresHoldStore {
	return &PostgresHoldStore{db: db}
}

func (s *PostgresHoldStore) Create(ctx context.Context, hold *Hold) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holds (hold_id, client_hold_id, doctor_id, room_id, service_id,
			start_time, end_time, patient_id, clinic_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		hold.HoldID, nullableString(hold.ClientHoldID), hold.Slot.DoctorID, hold.Slot.RoomID,
		hold.Slot.ServiceID, hold.Slot.StartTime, hold.Slot.EndTime, hold.PatientID,
		hold.ClinicID, hold.CreatedAt, hold.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("scheduling: create hold: %w", err)
	}
	return nil
}

func (s *PostgresHoldStore) Get(ctx context.Context, holdID string) (*Hold, error) {
	return s.scanHold(ctx, "hold_id = $1", holdID)
}

func (s *PostgresHoldStore) GetByClientID(ctx context.Context, clientHoldID string) (*Hold, error) {
	return s.scanHold(ctx, "client_hold_id = $1", clientHoldID)
}

func (s *PostgresHoldStore) scanHold(ctx context.Context, where, arg string) (*Hold, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT hold_id, client_hold_id, doctor_id, room_id, service_id,
			start_time, end_time, patient_id, clinic_id, created_at, expires_at
		FROM holds WHERE %s
	`, where), arg)

	var h Hold
	var clientHoldID sql.NullString
	if err := row.Scan(&h.HoldID, &clientHoldID, &h.Slot.DoctorID, &h.Slot.RoomID, &h.Slot.ServiceID,
		&h.Slot.StartTime, &h.Slot.EndTime, &h.PatientID, &h.ClinicID, &h.CreatedAt, &h.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrHoldNotFound
		}
		return nil, fmt.Errorf("scheduling: scan hold: %w", err)
	}
	h.ClientHoldID = clientHoldID.String
	return &h, nil
}

func (s *PostgresHoldStore) Delete(ctx context.Context, holdID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM holds WHERE hold_id = $1`, holdID); err != nil {
		return fmt.Errorf("scheduling: delete hold: %w", err)
	}
	return nil
}

// PostgresAppointmentStore persists confirmed Appointments.
type PostgresAppointmentStore struct {
	db *sql.DB
}

func NewPostgresAppointmentStore(db *sql.DB) *PostgresAppointmentStore {
	return &PostgresAppointmentStore{db: db}
}

func (s *PostgresAppointmentStore) Create(ctx context.Context, appt *Appointment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appointments (appointment_id, doctor_id, room_id, service_id,
			start_time, end_time, patient_id, clinic_id, status, policy_snapshot_id,
			policy_version, policy_bundle_sha256, calendar_synced, calendar_event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		appt.AppointmentID, appt.Slot.DoctorID, appt.Slot.RoomID, appt.Slot.ServiceID,
		appt.Slot.StartTime, appt.Slot.EndTime, appt.PatientID, appt.ClinicID, string(appt.Status),
		appt.PolicySnapshotID, appt.PolicyVersion, appt.PolicyBundleSHA256, appt.CalendarSynced,
		nullableString(appt.CalendarEventID), appt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("scheduling: create appointment: %w", err)
	}
	return nil
}

func (s *PostgresAppointmentStore) Get(ctx context.Context, appointmentID string) (*Appointment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT appointment_id, doctor_id, room_id, service_id, start_time, end_time,
			patient_id, clinic_id, status, policy_snapshot_id, policy_version,
			policy_bundle_sha256, calendar_synced, calendar_event_id, created_at
		FROM appointments WHERE appointment_id = $1
	`, appointmentID)

	var a Appointment
	var status string
	var calendarEventID sql.NullString
	if err := row.Scan(&a.AppointmentID, &a.Slot.DoctorID, &a.Slot.RoomID, &a.Slot.ServiceID,
		&a.Slot.StartTime, &a.Slot.EndTime, &a.PatientID, &a.ClinicID, &status, &a.PolicySnapshotID,
		&a.PolicyVersion, &a.PolicyBundleSHA256, &a.CalendarSynced, &calendarEventID, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrHoldNotFound
		}
		return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
	}
	a.Status = AppointmentStatus(status)
	a.CalendarEventID = calendarEventID.String
	return &a, nil
}

func (s *PostgresAppointmentStore) Update(ctx context.Context, appt *Appointment) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE appointments SET status = $2, calendar_synced = $3, calendar_event_id = $4
		WHERE appointment_id = $1
	`, appt.AppointmentID, string(appt.Status), appt.CalendarSynced, nullableString(appt.CalendarEventID))
	if err != nil {
		return fmt.Errorf("scheduling: update appointment: %w", err)
	}
	return nil
}

// PostgresEscalationStore persists Escalations, including the JSON-encoded
// suggestion list and original request, matching the teacher's pattern of
// storing structured sub-objects as a JSON column (cockroach.go's
// config/metadata columns).
type PostgresEscalationStore struct {
	db *sql.DB
}

func NewPostgresEscalationStore(db *sql.DB) *PostgresEscalationStore {
	return &PostgresEscalationStore{db: db}
}

func (s *PostgresEscalationStore) Create(ctx context.Context, esc *Escalation) error {
	requestJSON, err := json.Marshal(esc.Request)
	if err != nil {
		return fmt.Errorf("scheduling: marshal escalation request: %w", err)
	}
	suggestionsJSON, err := json.Marshal(esc.Suggestions)
	if err != nil {
		return fmt.Errorf("scheduling: marshal escalation suggestions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO escalations (id, clinic_id, patient_id, service_id, status, reason,
			request, suggestions, sla_deadline, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		esc.ID, esc.ClinicID, esc.PatientID, esc.ServiceID, string(esc.Status), esc.Reason,
		requestJSON, suggestionsJSON, esc.SLADeadline, esc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("scheduling: create escalation: %w", err)
	}
	return nil
}

func (s *PostgresEscalationStore) Get(ctx context.Context, id string) (*Escalation, error) {
	return s.scanOne(ctx, "id = $1", id)
}

func (s *PostgresEscalationStore) Update(ctx context.Context, esc *Escalation) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE escalations SET status = $2, resolved_at = $3, decline_reason = $4
		WHERE id = $1
	`, esc.ID, string(esc.Status), nullableTime(esc.ResolvedAt), nullableString(esc.DeclineReason))
	if err != nil {
		return fmt.Errorf("scheduling: update escalation: %w", err)
	}
	return nil
}

func (s *PostgresEscalationStore) FindRecentOpen(ctx context.Context, patientID, serviceID string, within time.Duration) (*Escalation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id FROM escalations
		WHERE patient_id = $1 AND service_id = $2 AND status = $3 AND created_at > $4
		ORDER BY created_at DESC LIMIT 1
	`, patientID, serviceID, string(EscalationOpen), time.Now().Add(-within))

	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEscalationNotFound
		}
		return nil, fmt.Errorf("scheduling: find recent escalation: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *PostgresEscalationStore) PendingForPatient(ctx context.Context, clinicID, patientID string) (*Escalation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id FROM escalations
		WHERE clinic_id = $1 AND patient_id = $2 AND status = $3
		ORDER BY created_at DESC LIMIT 1
	`, clinicID, patientID, string(EscalationOpen))

	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEscalationNotFound
		}
		return nil, fmt.Errorf("scheduling: find pending escalation: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *PostgresEscalationStore) PastSLA(ctx context.Context, now time.Time) ([]*Escalation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM escalations WHERE status = $1 AND sla_deadline < $2
	`, string(EscalationOpen), now)
	if err != nil {
		return nil, fmt.Errorf("scheduling: query past-sla escalations: %w", err)
	}
	defer rows.Close()

	var out []*Escalation
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scheduling: scan past-sla id: %w", err)
		}
		esc, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, esc)
	}
	return out, rows.Err()
}

func (s *PostgresEscalationStore) scanOne(ctx context.Context, where, arg string) (*Escalation, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, clinic_id, patient_id, service_id, status, reason, request,
			suggestions, sla_deadline, created_at, resolved_at, decline_reason
		FROM escalations WHERE %s
	`, where), arg)

	var esc Escalation
	var status string
	var requestJSON, suggestionsJSON []byte
	var resolvedAt sql.NullTime
	var declineReason sql.NullString
	if err := row.Scan(&esc.ID, &esc.ClinicID, &esc.PatientID, &esc.ServiceID, &status, &esc.Reason,
		&requestJSON, &suggestionsJSON, &esc.SLADeadline, &esc.CreatedAt, &resolvedAt, &declineReason); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEscalationNotFound
		}
		return nil, fmt.Errorf("scheduling: scan escalation: %w", err)
	}
	esc.Status = EscalationStatus(status)
	esc.ResolvedAt = resolvedAt.Time
	esc.DeclineReason = declineReason.String
	if err := json.Unmarshal(requestJSON, &esc.Request); err != nil {
		return nil, fmt.Errorf("scheduling: unmarshal escalation request: %w", err)
	}
	if err := json.Unmarshal(suggestionsJSON, &esc.Suggestions); err != nil {
		return nil, fmt.Errorf("scheduling: unmarshal escalation suggestions: %w", err)
	}
	return &esc, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
