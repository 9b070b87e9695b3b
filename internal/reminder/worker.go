// Package reminder runs the one-shot reminder and follow-up batch jobs.
package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medpratica/agenda-service/internal/agenda"
	"github.com/medpratica/agenda-service/internal/notify"
	"github.com/medpratica/agenda-service/internal/observability/metrics"
	"github.com/medpratica/agenda-service/pkg/logging"
)

// AppointmentStore is the subset of the appointment store the worker needs.
type AppointmentStore interface {
	ListDueReminders(ctx context.Context, date string) ([]agenda.Appointment, error)
	ListDueFollowups(ctx context.Context, date string) ([]agenda.Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error)
	UnmarkReminderSent(ctx context.Context, id uuid.UUID) error
	MarkFollowupSent(ctx context.Context, id uuid.UUID) (bool, error)
	UnmarkFollowupSent(ctx context.Context, id uuid.UUID) error
}

// ItemResult is the outcome for one appointment in a batch run.
type ItemResult struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Phone         string    `json:"phone"`
	Sent          bool      `json:"sent"`
	Error         string    `json:"error,omitempty"`
}

// Result summarizes one batch run. Processed counts dispatch attempts;
// appointments without a phone number are skipped silently and appointments
// claimed by a concurrent run are not attempted again.
type Result struct {
	Processed int          `json:"processed"`
	Items     []ItemResult `json:"items"`
}

// Worker sends reminders the day before and follow-ups the day after an
// appointment. Each appointment gets at most one of each: the sent flag is
// claimed with a conditional update before dispatching and released again
// when the dispatch fails.
type Worker struct {
	store    AppointmentStore
	sender   notify.Sender
	location *time.Location
	metrics  *metrics.JobMetrics
	logger   *logging.Logger
}

// NewWorker creates a reminder worker. location is the clinic timezone used
// to resolve "tomorrow" and "yesterday".
func NewWorker(store AppointmentStore, sender notify.Sender, location *time.Location, m *metrics.JobMetrics, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	if location == nil {
		location = time.UTC
	}
	return &Worker{store: store, sender: sender, location: location, metrics: m, logger: logger}
}

// ProcessReminders sends reminders for appointments scheduled tomorrow.
func (w *Worker) ProcessReminders(ctx context.Context, now time.Time) (*Result, error) {
	target := now.In(w.location).AddDate(0, 0, 1).Format(time.DateOnly)
	due, err := w.store.ListDueReminders(ctx, target)
	if err != nil {
		return nil, err
	}
	w.logger.Info("reminder: processing", "kind", "reminder", "date", target, "due", len(due))

	return w.dispatch(ctx, due, "reminder",
		func(a *agenda.Appointment) string { return ReminderMessage(a.PatientName, a.StartTime) },
		w.store.MarkReminderSent, w.store.UnmarkReminderSent), nil
}

// ProcessFollowups sends follow-ups for appointments completed yesterday.
func (w *Worker) ProcessFollowups(ctx context.Context, now time.Time) (*Result, error) {
	target := now.In(w.location).AddDate(0, 0, -1).Format(time.DateOnly)
	due, err := w.store.ListDueFollowups(ctx, target)
	if err != nil {
		return nil, err
	}
	w.logger.Info("reminder: processing", "kind", "followup", "date", target, "due", len(due))

	return w.dispatch(ctx, due, "followup",
		func(a *agenda.Appointment) string { return FollowupMessage(a.PatientName) },
		w.store.MarkFollowupSent, w.store.UnmarkFollowupSent), nil
}

func (w *Worker) dispatch(
	ctx context.Context,
	due []agenda.Appointment,
	kind string,
	render func(*agenda.Appointment) string,
	claim func(context.Context, uuid.UUID) (bool, error),
	release func(context.Context, uuid.UUID) error,
) *Result {
	result := &Result{}
	for i := range due {
		a := &due[i]
		if a.Phone == "" {
			// No way to reach the patient; not a failure.
			continue
		}

		claimed, err := claim(ctx, a.ID)
		if err != nil {
			result.Processed++
			result.Items = append(result.Items, ItemResult{AppointmentID: a.ID, Phone: a.Phone, Error: err.Error()})
			w.metrics.ObserveNotification(kind, "failed")
			w.logger.Error("reminder: claim failed", "kind", kind, "appointment_id", a.ID, "error", err)
			continue
		}
		if !claimed {
			// Another run got here first.
			continue
		}

		result.Processed++
		if err := w.sender.Send(ctx, a.Phone, render(a)); err != nil {
			if releaseErr := release(ctx, a.ID); releaseErr != nil {
				w.logger.Error("reminder: release flag failed",
					"kind", kind, "appointment_id", a.ID, "error", releaseErr)
			}
			result.Items = append(result.Items, ItemResult{AppointmentID: a.ID, Phone: a.Phone, Error: err.Error()})
			w.metrics.ObserveNotification(kind, "failed")
			w.logger.Error("reminder: dispatch failed", "kind", kind, "appointment_id", a.ID, "error", err)
			continue
		}

		result.Items = append(result.Items, ItemResult{AppointmentID: a.ID, Phone: a.Phone, Sent: true})
		w.metrics.ObserveNotification(kind, "sent")
		w.logger.Info("reminder: sent", "kind", kind, "appointment_id", a.ID)
	}
	return result
}
