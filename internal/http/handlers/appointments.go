package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medpratica/agenda-service/internal/agenda"
	"github.com/medpratica/agenda-service/internal/gcal"
	"github.com/medpratica/agenda-service/pkg/logging"
)

// AppointmentStore is the persistence surface the appointment handler needs.
type AppointmentStore interface {
	Create(ctx context.Context, a *agenda.Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*agenda.Appointment, error)
	Update(ctx context.Context, a *agenda.Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to agenda.Status) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByProfessionalRange(ctx context.Context, professionalID, from, to string) ([]agenda.Appointment, error)
}

// SyncDispatcher receives appointment change events for the external calendar.
type SyncDispatcher interface {
	HandleEvent(ctx context.Context, event gcal.ChangeEvent) error
}

// AppointmentHandler serves appointment CRUD and status transitions. Every
// successful mutation is forwarded to the calendar syncer; sync failures are
// logged and never fail the request.
type AppointmentHandler struct {
	store  AppointmentStore
	sync   SyncDispatcher
	logger *logging.Logger
}

// NewAppointmentHandler creates an appointment handler. sync may be nil when
// external calendar sync is not configured.
func NewAppointmentHandler(store AppointmentStore, sync SyncDispatcher, logger *logging.Logger) *AppointmentHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentHandler{store: store, sync: sync, logger: logger}
}

// Create handles POST /appointments.
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var appt agenda.Appointment
	if err := json.NewDecoder(r.Body).Decode(&appt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := validateAppointment(&appt); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if appt.Status != "" && !appt.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status: "+string(appt.Status))
		return
	}

	if err := h.store.Create(r.Context(), &appt); err != nil {
		h.logger.Error("create appointment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create appointment")
		return
	}

	h.dispatch(r.Context(), gcal.ChangeEvent{Type: gcal.ChangeCreate, New: &appt})
	writeJSON(w, http.StatusCreated, &appt)
}

// Get handles GET /appointments/{appointmentID}.
func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	appt, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, agenda.ErrNotFound) {
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	}
	if err != nil {
		h.logger.Error("get appointment failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// List handles GET /appointments?professional_id=&from=&to=.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	professionalID := r.URL.Query().Get("professional_id")
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if professionalID == "" || from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "professional_id, from and to are required")
		return
	}

	appts, err := h.store.ListByProfessionalRange(r.Context(), professionalID, from, to)
	if err != nil {
		h.logger.Error("list appointments failed", "professional_id", professionalID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}
	if appts == nil {
		appts = []agenda.Appointment{}
	}
	writeJSON(w, http.StatusOK, appts)
}

// Update handles PUT /appointments/{appointmentID}. The whole record is
// replaced; the previous state rides along to the syncer for loop prevention.
func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	old, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, agenda.ErrNotFound) {
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	}
	if err != nil {
		h.logger.Error("load appointment failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}

	updated := *old
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated.ID = id
	if msg := validateAppointment(&updated); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	// Status moves through the transition endpoint, not through updates.
	updated.Status = old.Status

	if err := h.store.Update(r.Context(), &updated); err != nil {
		h.logger.Error("update appointment failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update appointment")
		return
	}

	h.dispatch(r.Context(), gcal.ChangeEvent{Type: gcal.ChangeUpdate, New: &updated, Old: old})
	writeJSON(w, http.StatusOK, &updated)
}

type statusRequest struct {
	Status agenda.Status `json:"status"`
}

// UpdateStatus handles PATCH /appointments/{appointmentID}/status.
func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status: "+string(req.Status))
		return
	}

	old, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, agenda.ErrNotFound) {
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	}
	if err != nil {
		h.logger.Error("load appointment failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}

	err = h.store.UpdateStatus(r.Context(), id, old.Status, req.Status)
	switch {
	case errors.Is(err, agenda.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, agenda.ErrStatusConflict):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("status transition failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update status")
		return
	}

	updated := *old
	updated.Status = req.Status
	h.dispatch(r.Context(), gcal.ChangeEvent{Type: gcal.ChangeUpdate, New: &updated, Old: old})
	writeJSON(w, http.StatusOK, &updated)
}

// Delete handles DELETE /appointments/{appointmentID}.
func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	old, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, agenda.ErrNotFound) {
		writeError(w, http.StatusNotFound, "appointment not found")
		return
	}
	if err != nil {
		h.logger.Error("load appointment failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil && !errors.Is(err, agenda.ErrNotFound) {
		h.logger.Error("delete appointment failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete appointment")
		return
	}

	h.dispatch(r.Context(), gcal.ChangeEvent{Type: gcal.ChangeDelete, Old: old})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AppointmentHandler) dispatch(ctx context.Context, event gcal.ChangeEvent) {
	if h.sync == nil {
		return
	}
	if err := h.sync.HandleEvent(ctx, event); err != nil {
		h.logger.Error("calendar sync failed", "change", event.Type, "error", err)
	}
}

func validateAppointment(a *agenda.Appointment) string {
	switch {
	case a.ProfessionalID == "":
		return "professional_id is required"
	case a.PatientName == "":
		return "patient_name is required"
	case a.Date == "":
		return "date is required"
	case a.StartTime == "":
		return "start_time is required"
	}
	if _, err := agenda.ParseClock(a.StartTime); err != nil {
		return "start_time must be HH:MM"
	}
	if a.EndTime != nil && *a.EndTime != "" {
		if _, err := agenda.ParseClock(*a.EndTime); err != nil {
			return "end_time must be HH:MM"
		}
	}
	return ""
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return uuid.Nil, false
	}
	return id, true
}
