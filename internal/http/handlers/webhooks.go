package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/medpratica/agenda-service/internal/agenda"
	"github.com/medpratica/agenda-service/internal/gcal"
	"github.com/medpratica/agenda-service/pkg/logging"
)

// AppointmentWebhookHandler accepts appointment change notifications from
// systems that mutate the agenda tables directly (EMR imports, database
// triggers) and feeds them to the calendar syncer.
type AppointmentWebhookHandler struct {
	sync   SyncDispatcher
	logger *logging.Logger
}

// NewAppointmentWebhookHandler creates a webhook handler.
func NewAppointmentWebhookHandler(sync SyncDispatcher, logger *logging.Logger) *AppointmentWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentWebhookHandler{sync: sync, logger: logger}
}

type webhookPayload struct {
	Event struct {
		Type string `json:"type"`
	} `json:"event"`
	Data    *agenda.Appointment `json:"data"`
	OldData *agenda.Appointment `json:"old_data"`
}

// Handle processes POST /webhooks/appointments.
func (h *AppointmentWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var event gcal.ChangeEvent
	switch payload.Event.Type {
	case "create":
		if payload.Data == nil {
			writeError(w, http.StatusBadRequest, "create event requires data")
			return
		}
		event = gcal.ChangeEvent{Type: gcal.ChangeCreate, New: payload.Data}
	case "update":
		if payload.Data == nil {
			writeError(w, http.StatusBadRequest, "update event requires data")
			return
		}
		event = gcal.ChangeEvent{Type: gcal.ChangeUpdate, New: payload.Data, Old: payload.OldData}
	case "delete":
		if payload.OldData == nil {
			writeError(w, http.StatusBadRequest, "delete event requires old_data")
			return
		}
		event = gcal.ChangeEvent{Type: gcal.ChangeDelete, Old: payload.OldData}
	default:
		writeError(w, http.StatusBadRequest, "unknown event type: "+payload.Event.Type)
		return
	}

	if h.sync == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err := h.sync.HandleEvent(r.Context(), event); err != nil {
		h.logger.Error("webhook sync failed", "change", event.Type, "error", err)
		writeError(w, http.StatusBadGateway, "calendar sync failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}
