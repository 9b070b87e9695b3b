package gcal

import (
	"context"
	"errors"
	"fmt"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/medpratica/agenda-service/internal/agenda"
	"github.com/medpratica/agenda-service/internal/observability/metrics"
	"github.com/medpratica/agenda-service/pkg/logging"
)

// KnownIDLister returns the remote event ids already linked to appointments.
type KnownIDLister interface {
	ListKnownEventIDs(ctx context.Context, professionalID string) ([]string, error)
}

// BlockWriter creates schedule blocks and answers content-key dedup queries.
type BlockWriter interface {
	Create(ctx context.Context, b *agenda.ScheduleBlock) error
	Exists(ctx context.Context, professionalID, startDate string, startTime *string, reason string) (bool, error)
}

// SettingsLister extends SettingsReader with enumeration of sync-enabled
// professionals for global import runs.
type SettingsLister interface {
	SettingsReader
	ListSyncEnabled(ctx context.Context) ([]agenda.AgendaSettings, error)
}

// ImportItem is the outcome of one professional's import inside a global run.
type ImportItem struct {
	ProfessionalID string `json:"professional_id"`
	BlocksCreated  int    `json:"blocks_created"`
	Error          string `json:"error,omitempty"`
}

// ImportResult summarizes a global import run.
type ImportResult struct {
	BlocksCreated int          `json:"blocks_created"`
	Items         []ImportItem `json:"items"`
}

// Importer materializes remote busy events as schedule blocks. Events already
// linked to an appointment, transparent (free) events and cancelled instances
// are never imported.
type Importer struct {
	tokens       TokenSource
	settings     SettingsLister
	appointments KnownIDLister
	blocks       BlockWriter
	cache        *KnownIDCache
	calendarID   string
	windowDays   int
	location     *time.Location
	metrics      *metrics.JobMetrics
	logger       *logging.Logger
	opts         clientOptions
}

// NewImporter creates an inbound importer. windowDays bounds the lookahead of
// each run (default 30).
func NewImporter(tokens TokenSource, settings SettingsLister, appointments KnownIDLister, blocks BlockWriter, cache *KnownIDCache, calendarID string, windowDays int, location *time.Location, m *metrics.JobMetrics, logger *logging.Logger, opts ...Option) *Importer {
	if logger == nil {
		logger = logging.Default()
	}
	if location == nil {
		location = time.UTC
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	if windowDays <= 0 {
		windowDays = 30
	}
	imp := &Importer{
		tokens:       tokens,
		settings:     settings,
		appointments: appointments,
		blocks:       blocks,
		cache:        cache,
		calendarID:   calendarID,
		windowDays:   windowDays,
		location:     location,
		metrics:      m,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(&imp.opts)
	}
	return imp
}

// ImportProfessional imports remote busy time for a single professional and
// returns the number of blocks created. Disabled sync and missing tokens
// contribute zero blocks without error.
func (imp *Importer) ImportProfessional(ctx context.Context, professionalID string, now time.Time) (int, error) {
	settings, err := imp.settings.GetOrCreate(ctx, professionalID)
	if err != nil {
		return 0, fmt.Errorf("gcal: resolve settings: %w", err)
	}
	if !settings.ExternalSyncEnabled {
		imp.logger.Debug("gcal: import skipped, sync disabled", "professional_id", professionalID)
		return 0, nil
	}

	token, err := imp.tokens.Token(ctx, professionalID)
	if errors.Is(err, ErrNoToken) {
		imp.logger.Info("gcal: import skipped, no access token", "professional_id", professionalID)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("gcal: get token: %w", err)
	}

	svc, err := newCalendarService(ctx, token, imp.opts)
	if err != nil {
		return 0, err
	}

	timeMin := now
	timeMax := now.AddDate(0, 0, imp.windowDays)
	events, err := svc.Events.List(imp.calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("gcal: list events: %w", err)
	}

	known := imp.cache.Known(ctx, professionalID)
	if known == nil {
		known = make(map[string]bool)
	}
	ids, err := imp.appointments.ListKnownEventIDs(ctx, professionalID)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		known[id] = true
	}

	created := 0
	var seen []string
	for _, ev := range events.Items {
		if ev.Id == "" || known[ev.Id] {
			continue
		}
		if ev.Transparency == "transparent" || ev.Status == "cancelled" {
			// Free markers don't consume availability.
			continue
		}

		block, err := imp.blockFromEvent(professionalID, ev)
		if err != nil {
			imp.logger.Warn("gcal: skipping unparseable event", "event_id", ev.Id, "error", err)
			continue
		}

		exists, err := imp.blocks.Exists(ctx, professionalID, block.StartDate, block.StartTime, block.Reason)
		if err != nil {
			return created, err
		}
		if exists {
			seen = append(seen, ev.Id)
			continue
		}

		if err := imp.blocks.Create(ctx, block); err != nil {
			return created, err
		}
		created++
		seen = append(seen, ev.Id)
		imp.logger.Info("gcal: block imported",
			"professional_id", professionalID, "event_id", ev.Id, "date", block.StartDate)
	}

	imp.cache.Add(ctx, professionalID, seen...)
	imp.metrics.ObserveImportedBlocks(created)
	return created, nil
}

// ImportAll runs the import for every professional with sync enabled. A
// failure for one professional contributes zero blocks and never aborts the
// others.
func (imp *Importer) ImportAll(ctx context.Context, now time.Time) (*ImportResult, error) {
	enabled, err := imp.settings.ListSyncEnabled(ctx)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for i := range enabled {
		professionalID := enabled[i].ProfessionalID
		created, err := imp.ImportProfessional(ctx, professionalID, now)
		item := ImportItem{ProfessionalID: professionalID, BlocksCreated: created}
		if err != nil {
			item.Error = err.Error()
			imp.logger.Error("gcal: import failed for professional",
				"professional_id", professionalID, "error", err)
		}
		result.BlocksCreated += created
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// blockFromEvent derives the local block for a remote busy event. All-day
// events become all-day blocks; timed events are converted to clinic-timezone
// date and HH:MM strings.
func (imp *Importer) blockFromEvent(professionalID string, ev *calendar.Event) (*agenda.ScheduleBlock, error) {
	reason := "Google: Ocupado"
	if ev.Summary != "" {
		reason = "Google: " + ev.Summary
	}

	block := &agenda.ScheduleBlock{
		ProfessionalID:  professionalID,
		Reason:          reason,
		Recurrence:      agenda.RecurrenceNone,
		ExternalEventID: &ev.Id,
	}

	if ev.Start == nil {
		return nil, fmt.Errorf("gcal: event %s has no start", ev.Id)
	}

	if ev.Start.Date != "" {
		// All-day: Date carries YYYY-MM-DD and the end date is exclusive.
		block.AllDay = true
		block.StartDate = ev.Start.Date
		block.EndDate = ev.Start.Date
		if ev.End != nil && ev.End.Date != "" {
			end, err := time.Parse(time.DateOnly, ev.End.Date)
			if err == nil {
				inclusive := end.AddDate(0, 0, -1).Format(time.DateOnly)
				if inclusive > block.StartDate {
					block.EndDate = inclusive
				}
			}
		}
		return block, nil
	}

	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		return nil, fmt.Errorf("gcal: parse event start: %w", err)
	}
	localStart := start.In(imp.location)
	block.StartDate = localStart.Format(time.DateOnly)
	block.EndDate = block.StartDate
	startClock := localStart.Format("15:04")
	block.StartTime = &startClock

	endClock := localStart.Add(30 * time.Minute).Format("15:04")
	if ev.End != nil && ev.End.DateTime != "" {
		end, err := time.Parse(time.RFC3339, ev.End.DateTime)
		if err == nil {
			endClock = end.In(imp.location).Format("15:04")
		}
	}
	block.EndTime = &endClock
	return block, nil
}
