package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medpratica/agenda-service/internal/agenda"
	"github.com/medpratica/agenda-service/pkg/logging"
)

// SettingsStore is the persistence surface the settings handler needs.
type SettingsStore interface {
	GetOrCreate(ctx context.Context, professionalID string) (*agenda.AgendaSettings, error)
	Update(ctx context.Context, settings *agenda.AgendaSettings) error
}

// SettingsHandler serves per-professional agenda configuration.
type SettingsHandler struct {
	store  SettingsStore
	logger *logging.Logger
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(store SettingsStore, logger *logging.Logger) *SettingsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SettingsHandler{store: store, logger: logger}
}

// Get handles GET /professionals/{professionalID}/settings. Settings are
// created with defaults on first access.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	professionalID := chi.URLParam(r, "professionalID")
	settings, err := h.store.GetOrCreate(r.Context(), professionalID)
	if err != nil {
		h.logger.Error("load settings failed", "professional_id", professionalID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Update handles PUT /professionals/{professionalID}/settings. Fields absent
// from the body keep their current values; the feed token is never writable.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	professionalID := chi.URLParam(r, "professionalID")
	current, err := h.store.GetOrCreate(r.Context(), professionalID)
	if err != nil {
		h.logger.Error("load settings failed", "professional_id", professionalID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	token := current.FeedToken
	updated := *current
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated.ProfessionalID = professionalID
	updated.FeedToken = token

	if msg := validateWeeklySchedule(updated.WeeklySchedule); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if updated.SlotDurationMinutes <= 0 {
		writeError(w, http.StatusBadRequest, "slot_duration_minutes must be positive")
		return
	}

	if err := h.store.Update(r.Context(), &updated); err != nil {
		h.logger.Error("update settings failed", "professional_id", professionalID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, &updated)
}

func validateWeeklySchedule(schedule agenda.WeeklySchedule) string {
	for weekday, intervals := range schedule {
		if weekday < 0 || weekday > 6 {
			return "weekly_schedule weekday must be between 0 and 6"
		}
		for _, interval := range intervals {
			start, err := agenda.ParseClock(interval.Start)
			if err != nil {
				return "weekly_schedule interval start must be HH:MM"
			}
			end, err := agenda.ParseClock(interval.End)
			if err != nil {
				return "weekly_schedule interval end must be HH:MM"
			}
			if end <= start {
				return "weekly_schedule interval end must be after start"
			}
		}
	}
	return ""
}
