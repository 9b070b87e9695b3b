// Package gcal synchronizes the agenda with Google Calendar: outbound pushes
// of appointment changes and inbound imports of remote busy time.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/medpratica/agenda-service/internal/agenda"
	"github.com/medpratica/agenda-service/internal/observability/metrics"
	"github.com/medpratica/agenda-service/pkg/logging"
)

// ChangeType identifies the appointment mutation that triggered a sync.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeEvent is the payload delivered to the synchronizer on appointment
// create/update/delete.
type ChangeEvent struct {
	Type ChangeType
	New  *agenda.Appointment
	Old  *agenda.Appointment
}

// EventIDWriter persists the remote event id onto an appointment.
type EventIDWriter interface {
	SetExternalEventID(ctx context.Context, id uuid.UUID, eventID string) error
}

// SettingsReader resolves a professional's agenda settings.
type SettingsReader interface {
	GetOrCreate(ctx context.Context, professionalID string) (*agenda.AgendaSettings, error)
}

// Syncer pushes appointment changes to the external calendar. Each invocation
// performs at most one remote API call, except the repair path on update
// which falls back to a create when the tracked remote event is gone.
type Syncer struct {
	tokens     TokenSource
	store      EventIDWriter
	settings   SettingsReader
	calendarID string
	location   *time.Location
	metrics    *metrics.JobMetrics
	logger     *logging.Logger
	opts       clientOptions
}

// NewSyncer creates an outbound synchronizer.
func NewSyncer(tokens TokenSource, store EventIDWriter, settings SettingsReader, calendarID string, location *time.Location, m *metrics.JobMetrics, logger *logging.Logger, opts ...Option) *Syncer {
	if logger == nil {
		logger = logging.Default()
	}
	if location == nil {
		location = time.UTC
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	s := &Syncer{
		tokens:     tokens,
		store:      store,
		settings:   settings,
		calendarID: calendarID,
		location:   location,
		metrics:    m,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

// trackedFieldsChanged reports whether any field mirrored to the remote event
// differs between the two versions. The external_event_id write-back touches
// none of these, so it can never re-trigger a sync.
func trackedFieldsChanged(oldA, newA *agenda.Appointment) bool {
	if oldA == nil || newA == nil {
		return true
	}
	return oldA.PatientName != newA.PatientName ||
		oldA.Date != newA.Date ||
		oldA.StartTime != newA.StartTime ||
		!equalPtr(oldA.EndTime, newA.EndTime) ||
		oldA.Observations != newA.Observations ||
		oldA.Status != newA.Status
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// HandleEvent reconciles one appointment change against the remote calendar.
// Missing tokens and disabled sync are no-ops, not errors.
func (s *Syncer) HandleEvent(ctx context.Context, evt ChangeEvent) error {
	appt := evt.New
	if appt == nil {
		appt = evt.Old
	}
	if appt == nil {
		return fmt.Errorf("gcal: change event without data")
	}

	if s.settings != nil {
		settings, err := s.settings.GetOrCreate(ctx, appt.ProfessionalID)
		if err != nil {
			return fmt.Errorf("gcal: resolve settings: %w", err)
		}
		if !settings.ExternalSyncEnabled || !settings.SyncsType(appt.Type) {
			s.logger.Debug("gcal: sync disabled for appointment",
				"professional_id", appt.ProfessionalID, "type", appt.Type)
			s.metrics.ObserveSync(string(evt.Type), "skipped")
			return nil
		}
	}

	token, err := s.tokens.Token(ctx, appt.ProfessionalID)
	if errors.Is(err, ErrNoToken) {
		s.logger.Info("gcal: no access token, skipping sync", "professional_id", appt.ProfessionalID)
		s.metrics.ObserveSync(string(evt.Type), "skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("gcal: get token: %w", err)
	}

	svc, err := newCalendarService(ctx, token, s.opts)
	if err != nil {
		return err
	}

	switch evt.Type {
	case ChangeCreate:
		err = s.create(ctx, svc, evt.New)
	case ChangeUpdate:
		err = s.update(ctx, svc, evt)
	case ChangeDelete:
		err = s.delete(ctx, svc, evt.Old)
	default:
		err = fmt.Errorf("gcal: unknown change type %q", evt.Type)
	}
	if err != nil {
		s.metrics.ObserveSync(string(evt.Type), "error")
		return err
	}
	s.metrics.ObserveSync(string(evt.Type), "ok")
	return nil
}

func (s *Syncer) create(ctx context.Context, svc *calendar.Service, appt *agenda.Appointment) error {
	if appt == nil {
		return fmt.Errorf("gcal: create without new data")
	}
	body, err := s.buildEvent(appt)
	if err != nil {
		return err
	}
	created, err := svc.Events.Insert(s.calendarID, body).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gcal: insert event: %w", err)
	}
	if err := s.store.SetExternalEventID(ctx, appt.ID, created.Id); err != nil {
		return err
	}
	s.logger.Info("gcal: event created", "appointment_id", appt.ID, "event_id", created.Id)
	return nil
}

func (s *Syncer) update(ctx context.Context, svc *calendar.Service, evt ChangeEvent) error {
	if evt.New == nil {
		return fmt.Errorf("gcal: update without new data")
	}
	if !trackedFieldsChanged(evt.Old, evt.New) {
		// Loop prevention: nothing the remote event mirrors has changed.
		s.logger.Debug("gcal: no tracked change, skipping", "appointment_id", evt.New.ID)
		return nil
	}

	eventID := remoteEventID(evt.New, evt.Old)
	if eventID == "" {
		// The appointment was never pushed (or the link was lost): self-heal
		// by creating the remote event now.
		return s.create(ctx, svc, evt.New)
	}

	body, err := s.buildEvent(evt.New)
	if err != nil {
		return err
	}
	_, err = svc.Events.Patch(s.calendarID, eventID, body).Context(ctx).Do()
	if isGone(err) {
		// The remote side owns the event lifecycle and dropped it.
		s.logger.Info("gcal: remote event gone, recreating", "appointment_id", evt.New.ID, "event_id", eventID)
		return s.create(ctx, svc, evt.New)
	}
	if err != nil {
		return fmt.Errorf("gcal: patch event %s: %w", eventID, err)
	}
	s.logger.Info("gcal: event patched", "appointment_id", evt.New.ID, "event_id", eventID)
	return nil
}

func (s *Syncer) delete(ctx context.Context, svc *calendar.Service, old *agenda.Appointment) error {
	if old == nil || old.ExternalEventID == nil || *old.ExternalEventID == "" {
		return nil
	}
	eventID := *old.ExternalEventID
	err := svc.Events.Delete(s.calendarID, eventID).Context(ctx).Do()
	if err != nil && !isGone(err) {
		return fmt.Errorf("gcal: delete event %s: %w", eventID, err)
	}
	s.logger.Info("gcal: event deleted", "appointment_id", old.ID, "event_id", eventID)
	return nil
}

// buildEvent maps an appointment to the remote event body. The end time
// defaults to 30 minutes after the start when none is recorded.
func (s *Syncer) buildEvent(appt *agenda.Appointment) (*calendar.Event, error) {
	start, err := time.ParseInLocation("2006-01-02 15:04", appt.Date+" "+appt.StartTime, s.location)
	if err != nil {
		return nil, fmt.Errorf("gcal: parse start %q %q: %w", appt.Date, appt.StartTime, err)
	}
	var end time.Time
	if appt.EndTime != nil && *appt.EndTime != "" {
		end, err = time.ParseInLocation("2006-01-02 15:04", appt.Date+" "+*appt.EndTime, s.location)
		if err != nil {
			return nil, fmt.Errorf("gcal: parse end %q %q: %w", appt.Date, *appt.EndTime, err)
		}
	} else {
		end = start.Add(30 * time.Minute)
	}

	description := "Tipo: " + appt.Type + "\nStatus: " + string(appt.Status)
	if appt.Observations != "" {
		description += "\nObservações: " + appt.Observations
	}

	return &calendar.Event{
		Summary:     "Consulta: " + appt.PatientName,
		Description: description,
		Start: &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: s.location.String(),
		},
		End: &calendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: s.location.String(),
		},
	}, nil
}

func remoteEventID(newA, oldA *agenda.Appointment) string {
	if newA != nil && newA.ExternalEventID != nil && *newA.ExternalEventID != "" {
		return *newA.ExternalEventID
	}
	if oldA != nil && oldA.ExternalEventID != nil && *oldA.ExternalEventID != "" {
		return *oldA.ExternalEventID
	}
	return ""
}

// isGone reports whether the remote calendar answered 404/410 for an event we
// still track.
func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404 || apiErr.Code == 410
	}
	return false
}
