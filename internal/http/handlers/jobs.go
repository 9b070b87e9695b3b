package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/medpratica/agenda-service/internal/gcal"
	"github.com/medpratica/agenda-service/internal/reminder"
	"github.com/medpratica/agenda-service/pkg/logging"
)

// BatchWorker runs the reminder and follow-up batches.
type BatchWorker interface {
	ProcessReminders(ctx context.Context, now time.Time) (*reminder.Result, error)
	ProcessFollowups(ctx context.Context, now time.Time) (*reminder.Result, error)
}

// CalendarImporter runs the inbound calendar import.
type CalendarImporter interface {
	ImportProfessional(ctx context.Context, professionalID string, now time.Time) (int, error)
	ImportAll(ctx context.Context, now time.Time) (*gcal.ImportResult, error)
}

// JobsHandler exposes the batch jobs as trigger endpoints for the external
// scheduler (cron, Cloud Scheduler).
type JobsHandler struct {
	worker   BatchWorker
	importer CalendarImporter
	now      func() time.Time
	logger   *logging.Logger
}

// NewJobsHandler creates a jobs handler. importer may be nil when calendar
// sync is not configured.
func NewJobsHandler(worker BatchWorker, importer CalendarImporter, logger *logging.Logger) *JobsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &JobsHandler{worker: worker, importer: importer, now: time.Now, logger: logger}
}

// RunReminders handles POST /jobs/reminders.
func (h *JobsHandler) RunReminders(w http.ResponseWriter, r *http.Request) {
	result, err := h.worker.ProcessReminders(r.Context(), h.now())
	if err != nil {
		h.logger.Error("reminder batch failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reminder batch failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RunFollowups handles POST /jobs/followups.
func (h *JobsHandler) RunFollowups(w http.ResponseWriter, r *http.Request) {
	result, err := h.worker.ProcessFollowups(r.Context(), h.now())
	if err != nil {
		h.logger.Error("followup batch failed", "error", err)
		writeError(w, http.StatusInternalServerError, "followup batch failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type importRequest struct {
	ProfessionalID string `json:"professional_id"`
}

type importResponse struct {
	ProfessionalID string `json:"professional_id"`
	BlocksCreated  int    `json:"blocks_created"`
}

// RunImport handles POST /jobs/import. With a professional_id in the body the
// import runs for that professional only; an empty body imports everyone with
// sync enabled.
func (h *JobsHandler) RunImport(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar import is not configured")
		return
	}

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.ProfessionalID != "" {
		created, err := h.importer.ImportProfessional(r.Context(), req.ProfessionalID, h.now())
		if err != nil {
			h.logger.Error("import failed", "professional_id", req.ProfessionalID, "error", err)
			writeError(w, http.StatusInternalServerError, "calendar import failed")
			return
		}
		writeJSON(w, http.StatusOK, importResponse{ProfessionalID: req.ProfessionalID, BlocksCreated: created})
		return
	}

	result, err := h.importer.ImportAll(r.Context(), h.now())
	if err != nil {
		h.logger.Error("global import failed", "error", err)
		writeError(w, http.StatusInternalServerError, "calendar import failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
