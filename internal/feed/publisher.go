// Package feed projects a professional's agenda into an iCalendar document
// for external subscription. It is a pure read: nothing here mutates state.
package feed

import (
	"context"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/medpratica/agenda-service/internal/agenda"
	"github.com/medpratica/agenda-service/pkg/logging"
)

// SettingsByToken resolves agenda settings from a feed token.
type SettingsByToken interface {
	GetByFeedToken(ctx context.Context, token string) (*agenda.AgendaSettings, error)
}

// AppointmentLister lists a professional's appointments in a date range.
type AppointmentLister interface {
	ListByProfessionalRange(ctx context.Context, professionalID, from, to string) ([]agenda.Appointment, error)
}

// BlockLister lists a professional's schedule blocks.
type BlockLister interface {
	ListByProfessional(ctx context.Context, professionalID string) ([]agenda.ScheduleBlock, error)
}

// Directory resolves professional display names.
type Directory interface {
	ProfessionalName(ctx context.Context, professionalID string) (string, error)
}

// Feed windows. Subscribing clients refresh periodically, so a bounded
// backlog plus a year of lookahead keeps the document small.
const (
	lookbehindDays = 30
	lookaheadDays  = 365
)

// Publisher renders the calendar feed.
type Publisher struct {
	settings     SettingsByToken
	appointments AppointmentLister
	blocks       BlockLister
	directory    Directory
	location     *time.Location
	logger       *logging.Logger
}

// NewPublisher creates a feed publisher.
func NewPublisher(settings SettingsByToken, appointments AppointmentLister, blocks BlockLister, directory Directory, location *time.Location, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.Default()
	}
	if location == nil {
		location = time.UTC
	}
	return &Publisher{
		settings:     settings,
		appointments: appointments,
		blocks:       blocks,
		directory:    directory,
		location:     location,
		logger:       logger,
	}
}

// Build resolves the feed token and renders the ICS document. Unknown,
// disabled or orphaned tokens all surface as agenda.ErrNotFound.
func (p *Publisher) Build(ctx context.Context, token string, now time.Time) (string, error) {
	settings, err := p.settings.GetByFeedToken(ctx, token)
	if err != nil {
		return "", err
	}
	if !settings.FeedEnabled {
		return "", agenda.ErrNotFound
	}

	name, err := p.directory.ProfessionalName(ctx, settings.ProfessionalID)
	if err != nil {
		return "", err
	}

	from := now.In(p.location).AddDate(0, 0, -lookbehindDays).Format(time.DateOnly)
	to := now.In(p.location).AddDate(0, 0, lookaheadDays).Format(time.DateOnly)
	appointments, err := p.appointments.ListByProfessionalRange(ctx, settings.ProfessionalID, from, to)
	if err != nil {
		return "", err
	}
	blocks, err := p.blocks.ListByProfessional(ctx, settings.ProfessionalID)
	if err != nil {
		return "", err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//MedPratica//Agenda//PT")

	for i := range appointments {
		a := &appointments[i]
		if a.Status == agenda.StatusCancelado {
			continue
		}
		if err := p.addAppointment(cal, a, name); err != nil {
			p.logger.Warn("feed: skipping unrenderable appointment", "appointment_id", a.ID, "error", err)
		}
	}
	for i := range blocks {
		b := &blocks[i]
		if err := p.addBlock(cal, b); err != nil {
			p.logger.Warn("feed: skipping unrenderable block", "block_id", b.ID, "error", err)
		}
	}

	return cal.Serialize(), nil
}

func (p *Publisher) addAppointment(cal *ics.Calendar, a *agenda.Appointment, professionalName string) error {
	start, err := time.ParseInLocation("2006-01-02 15:04", a.Date+" "+a.StartTime, p.location)
	if err != nil {
		return fmt.Errorf("feed: parse appointment start: %w", err)
	}
	end, err := time.ParseInLocation("2006-01-02 15:04", a.Date+" "+a.EndOrDefault(), p.location)
	if err != nil {
		return fmt.Errorf("feed: parse appointment end: %w", err)
	}

	event := cal.AddEvent(a.ID.String() + "@agenda.medpratica")
	event.SetDtStampTime(a.UpdatedAt)
	event.SetStartAt(start)
	event.SetEndAt(end)
	event.SetSummary("Consulta: " + a.PatientName)
	event.SetDescription(fmt.Sprintf("Profissional: %s\nTipo: %s\nStatus: %s", professionalName, a.Type, a.Status))
	return nil
}

func (p *Publisher) addBlock(cal *ics.Calendar, b *agenda.ScheduleBlock) error {
	event := cal.AddEvent(b.ID.String() + "@agenda.medpratica")
	event.SetDtStampTime(b.CreatedAt)
	event.SetSummary(b.Reason)
	event.SetTimeTransparency(ics.TransparencyOpaque)

	startDate, err := time.ParseInLocation(time.DateOnly, b.StartDate, p.location)
	if err != nil {
		return fmt.Errorf("feed: parse block start date: %w", err)
	}

	if b.AllDay || b.StartTime == nil || b.EndTime == nil {
		endDate := startDate
		if b.EndDate != "" {
			if parsed, err := time.ParseInLocation(time.DateOnly, b.EndDate, p.location); err == nil {
				endDate = parsed
			}
		}
		event.SetAllDayStartAt(startDate)
		// DTEND is exclusive for all-day events.
		event.SetAllDayEndAt(endDate.AddDate(0, 0, 1))
	} else {
		start, err := time.ParseInLocation("2006-01-02 15:04", b.StartDate+" "+*b.StartTime, p.location)
		if err != nil {
			return fmt.Errorf("feed: parse block start: %w", err)
		}
		end, err := time.ParseInLocation("2006-01-02 15:04", b.StartDate+" "+*b.EndTime, p.location)
		if err != nil {
			return fmt.Errorf("feed: parse block end: %w", err)
		}
		event.SetStartAt(start)
		event.SetEndAt(end)
	}

	switch b.Recurrence {
	case agenda.RecurrenceWeekly:
		event.AddRrule("FREQ=WEEKLY")
	case agenda.RecurrenceMonthly:
		event.AddRrule("FREQ=MONTHLY")
	}
	return nil
}
