package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medpratica/agenda-service/internal/agenda"
	"github.com/medpratica/agenda-service/internal/availability"
	"github.com/medpratica/agenda-service/pkg/logging"
)

// SlotReader bundles the queries a slot computation needs.
type SlotReader interface {
	GetOrCreate(ctx context.Context, professionalID string) (*agenda.AgendaSettings, error)
}

// SlotBlockLister lists a professional's schedule blocks.
type SlotBlockLister interface {
	ListByProfessional(ctx context.Context, professionalID string) ([]agenda.ScheduleBlock, error)
}

// SlotAppointmentLister lists appointments in a date range.
type SlotAppointmentLister interface {
	ListByProfessionalRange(ctx context.Context, professionalID, from, to string) ([]agenda.Appointment, error)
}

// SlotsHandler computes free slots for a professional on a given date.
type SlotsHandler struct {
	settings     SlotReader
	blocks       SlotBlockLister
	appointments SlotAppointmentLister
	logger       *logging.Logger
}

// NewSlotsHandler creates a slots handler.
func NewSlotsHandler(settings SlotReader, blocks SlotBlockLister, appointments SlotAppointmentLister, logger *logging.Logger) *SlotsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SlotsHandler{settings: settings, blocks: blocks, appointments: appointments, logger: logger}
}

type slotsResponse struct {
	Date  string              `json:"date"`
	Slots []availability.Slot `json:"slots"`
}

// Get handles GET /professionals/{professionalID}/slots?date=YYYY-MM-DD&type=.
func (h *SlotsHandler) Get(w http.ResponseWriter, r *http.Request) {
	professionalID := chi.URLParam(r, "professionalID")
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	typeFilter := r.URL.Query().Get("type")

	settings, err := h.settings.GetOrCreate(r.Context(), professionalID)
	if err != nil {
		h.logger.Error("load settings failed", "professional_id", professionalID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	blocks, err := h.blocks.ListByProfessional(r.Context(), professionalID)
	if err != nil {
		h.logger.Error("list blocks failed", "professional_id", professionalID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list blocks")
		return
	}
	appointments, err := h.appointments.ListByProfessionalRange(r.Context(), professionalID, date, date)
	if err != nil {
		h.logger.Error("list appointments failed", "professional_id", professionalID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}

	slots, err := availability.Slots(settings, blocks, appointments, date, typeFilter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if slots == nil {
		slots = []availability.Slot{}
	}
	writeJSON(w, http.StatusOK, slotsResponse{Date: date, Slots: slots})
}
