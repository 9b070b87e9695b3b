package agenda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const appointmentColumns = `id, professional_id, professional_name, patient_id, patient_name, phone,
		date::text, start_time, end_time, type, status, observations,
		reminder_sent, followup_sent, external_event_id, created_at, updated_at`

// AppointmentStore provides CRUD operations for agendamentos.
type AppointmentStore struct {
	db DB
}

// NewAppointmentStore creates a new appointment store.
func NewAppointmentStore(db DB) *AppointmentStore {
	return &AppointmentStore{db: db}
}

// Create inserts a new appointment.
func (s *AppointmentStore) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusAgendado
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO agendamentos (id, professional_id, professional_name, patient_id, patient_name, phone,
			date, start_time, end_time, type, status, observations,
			reminder_sent, followup_sent, external_event_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		a.ID, a.ProfessionalID, a.ProfessionalName, a.PatientID, a.PatientName, a.Phone,
		a.Date, a.StartTime, a.EndTime, a.Type, string(a.Status), a.Observations,
		a.ReminderSent, a.FollowupSent, a.ExternalEventID, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("agenda: create appointment: %w", err)
	}
	return nil
}

// GetByID returns a single appointment or ErrNotFound.
func (s *AppointmentStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM agendamentos WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("agenda: get appointment: %w", err)
	}
	return a, nil
}

// Update rewrites the mutable fields of an appointment.
func (s *AppointmentStore) Update(ctx context.Context, a *Appointment) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE agendamentos
		SET professional_id = $2, professional_name = $3, patient_id = $4, patient_name = $5,
			phone = $6, date = $7, start_time = $8, end_time = $9, type = $10,
			status = $11, observations = $12, updated_at = $13
		WHERE id = $1`,
		a.ID, a.ProfessionalID, a.ProfessionalName, a.PatientID, a.PatientName,
		a.Phone, a.Date, a.StartTime, a.EndTime, a.Type,
		string(a.Status), a.Observations, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("agenda: update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions an appointment between statuses. The update is
// conditional on the current status so concurrent check-in flows cannot
// clobber each other.
func (s *AppointmentStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE agendamentos SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("agenda: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: appointment %s is no longer %s", ErrStatusConflict, id, from)
	}
	return nil
}

// Delete removes an appointment.
func (s *AppointmentStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM agendamentos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("agenda: delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDueReminders returns scheduled appointments on the given date whose
// reminder has not been sent yet.
func (s *AppointmentStore) ListDueReminders(ctx context.Context, date string) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM agendamentos
		WHERE date = $1 AND status = 'agendado' AND reminder_sent = FALSE
		ORDER BY start_time ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("agenda: list due reminders: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListDueFollowups returns completed appointments on the given date whose
// follow-up has not been sent yet.
func (s *AppointmentStore) ListDueFollowups(ctx context.Context, date string) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM agendamentos
		WHERE date = $1 AND status = 'realizado' AND followup_sent = FALSE
		ORDER BY start_time ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("agenda: list due followups: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListByProfessionalRange returns a professional's appointments with date in
// [from, to], any status, ordered by date and start time.
func (s *AppointmentStore) ListByProfessionalRange(ctx context.Context, professionalID, from, to string) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM agendamentos
		WHERE professional_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC, start_time ASC`, professionalID, from, to)
	if err != nil {
		return nil, fmt.Errorf("agenda: list by professional range: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// MarkReminderSent claims the reminder flag. It returns false when the flag
// was already set, so two overlapping scheduler runs cannot both send.
func (s *AppointmentStore) MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE agendamentos SET reminder_sent = TRUE, updated_at = $2
		WHERE id = $1 AND reminder_sent = FALSE`, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("agenda: mark reminder sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UnmarkReminderSent releases a claimed reminder flag after a dispatch
// failure so a later run can retry.
func (s *AppointmentStore) UnmarkReminderSent(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE agendamentos SET reminder_sent = FALSE, updated_at = $2
		WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("agenda: unmark reminder sent: %w", err)
	}
	return nil
}

// MarkFollowupSent claims the follow-up flag. See MarkReminderSent.
func (s *AppointmentStore) MarkFollowupSent(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE agendamentos SET followup_sent = TRUE, updated_at = $2
		WHERE id = $1 AND followup_sent = FALSE`, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("agenda: mark followup sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UnmarkFollowupSent releases a claimed follow-up flag after a dispatch failure.
func (s *AppointmentStore) UnmarkFollowupSent(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE agendamentos SET followup_sent = FALSE, updated_at = $2
		WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("agenda: unmark followup sent: %w", err)
	}
	return nil
}

// SetExternalEventID writes back the remote calendar event id. This is the
// synchronizer's only local write and intentionally does not touch any field
// tracked by the change detector.
func (s *AppointmentStore) SetExternalEventID(ctx context.Context, id uuid.UUID, eventID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE agendamentos SET external_event_id = $2, updated_at = $3
		WHERE id = $1`, id, eventID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("agenda: set external event id: %w", err)
	}
	return nil
}

// ListKnownEventIDs returns the remote event ids already linked to a
// professional's appointments.
func (s *AppointmentStore) ListKnownEventIDs(ctx context.Context, professionalID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT external_event_id FROM agendamentos
		WHERE professional_id = $1 AND external_event_id IS NOT NULL`, professionalID)
	if err != nil {
		return nil, fmt.Errorf("agenda: list known event ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("agenda: scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agenda: list known event ids: %w", err)
	}
	return ids, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(
		&a.ID, &a.ProfessionalID, &a.ProfessionalName, &a.PatientID, &a.PatientName, &a.Phone,
		&a.Date, &a.StartTime, &a.EndTime, &a.Type, &status, &a.Observations,
		&a.ReminderSent, &a.FollowupSent, &a.ExternalEventID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("agenda: scan appointment: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agenda: scan appointments: %w", err)
	}
	return out, nil
}
