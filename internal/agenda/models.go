// Package agenda holds the scheduling domain: appointments, schedule blocks,
// weekly availability and per-professional agenda settings.
package agenda

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of an appointment.
type Status string

const (
	StatusAgendado      Status = "agendado"
	StatusRecepcionado  Status = "recepcionado"
	StatusEmTriagem     Status = "em_triagem"
	StatusAguardando    Status = "aguardando_atendimento"
	StatusEmAtendimento Status = "em_atendimento"
	StatusRealizado     Status = "realizado"
	StatusCancelado     Status = "cancelado"
	StatusFaltou        Status = "faltou"
)

// statusOrder gives the position of each state on the forward path.
// Side branches (cancelado, faltou) are not on the path.
var statusOrder = map[Status]int{
	StatusAgendado:      0,
	StatusRecepcionado:  1,
	StatusEmTriagem:     2,
	StatusAguardando:    3,
	StatusEmAtendimento: 4,
	StatusRealizado:     5,
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusRealizado || s == StatusCancelado || s == StatusFaltou
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	if _, ok := statusOrder[s]; ok {
		return true
	}
	return s == StatusCancelado || s == StatusFaltou
}

// CanTransition reports whether an appointment may move from one status to
// another. The forward path is monotonic; cancelado is reachable from any
// non-terminal state and faltou only from agendado or recepcionado.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelado {
		return true
	}
	if to == StatusFaltou {
		return from == StatusAgendado || from == StatusRecepcionado
	}
	fromPos, okFrom := statusOrder[from]
	toPos, okTo := statusOrder[to]
	return okFrom && okTo && toPos > fromPos
}

// Appointment is the schedulable unit: a patient-professional encounter.
// Date is YYYY-MM-DD and times are HH:MM, interpreted in the clinic timezone.
type Appointment struct {
	ID               uuid.UUID `json:"id"`
	ProfessionalID   string    `json:"professional_id"`
	ProfessionalName string    `json:"professional_name"`
	PatientID        string    `json:"patient_id"`
	PatientName      string    `json:"patient_name"`
	Phone            string    `json:"phone"`
	Date             string    `json:"date"`
	StartTime        string    `json:"start_time"`
	EndTime          *string   `json:"end_time,omitempty"`
	Type             string    `json:"type"`
	Status           Status    `json:"status"`
	Observations     string    `json:"observations"`
	ReminderSent     bool      `json:"reminder_sent"`
	FollowupSent     bool      `json:"followup_sent"`
	ExternalEventID  *string   `json:"external_event_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Recurrence describes how a schedule block repeats.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "nenhuma"
	RecurrenceWeekly  Recurrence = "semanal"
	RecurrenceMonthly Recurrence = "mensal"
)

// ScheduleBlock removes a time range from a professional's availability
// (vacations, personal blocks, holidays, imported busy time). Time fields are
// nil when AllDay is set. Blocks created by the calendar importer carry a
// reason prefixed with "Google: " and are never updated in place.
type ScheduleBlock struct {
	ID              uuid.UUID  `json:"id"`
	ProfessionalID  string     `json:"professional_id"`
	StartDate       string     `json:"start_date"`
	EndDate         string     `json:"end_date"`
	StartTime       *string    `json:"start_time,omitempty"`
	EndTime         *string    `json:"end_time,omitempty"`
	AllDay          bool       `json:"all_day"`
	Reason          string     `json:"reason"`
	Recurrence      Recurrence `json:"recurrence"`
	ExternalEventID *string    `json:"external_event_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Interval is a recurring availability window within a weekday. Type restricts
// the window to one appointment type; "all" accepts any.
type Interval struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Type  string `json:"type"`
}

// WeeklySchedule maps weekday (0–6, Sunday=0) to availability intervals.
// A weekday absent from the map is fully blocked. Intervals are not required
// to be sorted or disjoint; overlaps simply produce overlapping windows.
type WeeklySchedule map[int][]Interval

// AgendaSettings is the per-professional agenda configuration, created lazily
// with defaults on first access.
type AgendaSettings struct {
	ProfessionalID      string         `json:"professional_id"`
	WeeklySchedule      WeeklySchedule `json:"weekly_schedule"`
	SlotDurationMinutes int            `json:"slot_duration_minutes"`
	ExternalSyncEnabled bool           `json:"external_sync_enabled"`
	ExternalSyncTypes   []string       `json:"external_sync_types"`
	FeedToken           string         `json:"feed_token"`
	FeedEnabled         bool           `json:"feed_enabled"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// SyncsType reports whether appointments of the given type should be pushed to
// the external calendar. An empty ExternalSyncTypes list means all types.
func (s *AgendaSettings) SyncsType(appointmentType string) bool {
	if len(s.ExternalSyncTypes) == 0 {
		return true
	}
	for _, t := range s.ExternalSyncTypes {
		if t == appointmentType {
			return true
		}
	}
	return false
}

// ParseClock parses an HH:MM clock string into minutes since midnight.
func ParseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("agenda: parse clock %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes since midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// EndOrDefault returns the appointment's end time, defaulting to 30 minutes
// after the start when none is recorded.
func (a *Appointment) EndOrDefault() string {
	if a.EndTime != nil && *a.EndTime != "" {
		return *a.EndTime
	}
	start, err := ParseClock(a.StartTime)
	if err != nil {
		return a.StartTime
	}
	return FormatClock(start + 30)
}
