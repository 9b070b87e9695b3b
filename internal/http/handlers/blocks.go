package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medpratica/agenda-service/internal/agenda"
	"github.com/medpratica/agenda-service/pkg/logging"
)

// BlockStore is the persistence surface the block handler needs.
type BlockStore interface {
	Create(ctx context.Context, b *agenda.ScheduleBlock) error
	GetByID(ctx context.Context, id uuid.UUID) (*agenda.ScheduleBlock, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByProfessional(ctx context.Context, professionalID string) ([]agenda.ScheduleBlock, error)
}

// BlockHandler serves schedule block CRUD.
type BlockHandler struct {
	store  BlockStore
	logger *logging.Logger
}

// NewBlockHandler creates a block handler.
func NewBlockHandler(store BlockStore, logger *logging.Logger) *BlockHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &BlockHandler{store: store, logger: logger}
}

// Create handles POST /blocks.
func (h *BlockHandler) Create(w http.ResponseWriter, r *http.Request) {
	var block agenda.ScheduleBlock
	if err := json.NewDecoder(r.Body).Decode(&block); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := validateBlock(&block); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.store.Create(r.Context(), &block); err != nil {
		h.logger.Error("create block failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create block")
		return
	}
	writeJSON(w, http.StatusCreated, &block)
}

// Get handles GET /blocks/{blockID}.
func (h *BlockHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBlockID(w, r)
	if !ok {
		return
	}
	block, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, agenda.ErrNotFound) {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	if err != nil {
		h.logger.Error("get block failed", "block_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load block")
		return
	}
	writeJSON(w, http.StatusOK, block)
}

// List handles GET /professionals/{professionalID}/blocks.
func (h *BlockHandler) List(w http.ResponseWriter, r *http.Request) {
	professionalID := chi.URLParam(r, "professionalID")
	blocks, err := h.store.ListByProfessional(r.Context(), professionalID)
	if err != nil {
		h.logger.Error("list blocks failed", "professional_id", professionalID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list blocks")
		return
	}
	if blocks == nil {
		blocks = []agenda.ScheduleBlock{}
	}
	writeJSON(w, http.StatusOK, blocks)
}

// Delete handles DELETE /blocks/{blockID}.
func (h *BlockHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBlockID(w, r)
	if !ok {
		return
	}
	err := h.store.Delete(r.Context(), id)
	if errors.Is(err, agenda.ErrNotFound) {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	if err != nil {
		h.logger.Error("delete block failed", "block_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete block")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validateBlock(b *agenda.ScheduleBlock) string {
	switch {
	case b.ProfessionalID == "":
		return "professional_id is required"
	case b.StartDate == "":
		return "start_date is required"
	case b.Reason == "":
		return "reason is required"
	}
	if !b.AllDay {
		if b.StartTime == nil || b.EndTime == nil {
			return "start_time and end_time are required for timed blocks"
		}
		start, err := agenda.ParseClock(*b.StartTime)
		if err != nil {
			return "start_time must be HH:MM"
		}
		end, err := agenda.ParseClock(*b.EndTime)
		if err != nil {
			return "end_time must be HH:MM"
		}
		if end <= start {
			return "end_time must be after start_time"
		}
	}
	if b.Recurrence != "" {
		switch b.Recurrence {
		case agenda.RecurrenceNone, agenda.RecurrenceWeekly, agenda.RecurrenceMonthly:
		default:
			return "unknown recurrence: " + string(b.Recurrence)
		}
	}
	return ""
}

func parseBlockID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "blockID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid block id")
		return uuid.Nil, false
	}
	return id, true
}
