package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medpratica/agenda-service/internal/agenda"
	"github.com/medpratica/agenda-service/pkg/logging"
)

// FeedBuilder renders a professional's ICS document from a feed token.
type FeedBuilder interface {
	Build(ctx context.Context, token string, now time.Time) (string, error)
}

// FeedHandler serves the public calendar feed. The route is token-addressed
// and unauthenticated; errors are deliberately uniform so tokens cannot be
// probed.
type FeedHandler struct {
	builder FeedBuilder
	now     func() time.Time
	logger  *logging.Logger
}

// NewFeedHandler creates a feed handler.
func NewFeedHandler(builder FeedBuilder, logger *logging.Logger) *FeedHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FeedHandler{builder: builder, now: time.Now, logger: logger}
}

// Get handles GET /agenda/feed/{token}.ics.
func (h *FeedHandler) Get(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSuffix(chi.URLParam(r, "token"), ".ics")

	doc, err := h.builder.Build(r.Context(), token, h.now())
	if errors.Is(err, agenda.ErrNotFound) {
		http.Error(w, "calendar not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("feed build failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(doc))
}
