// Package router wires the HTTP surface of the agenda service.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medpratica/agenda-service/internal/http/handlers"
)

// Config holds router configuration.
type Config struct {
	Health       *handlers.HealthHandler
	Appointments *handlers.AppointmentHandler
	Blocks       *handlers.BlockHandler
	Settings     *handlers.SettingsHandler
	Slots        *handlers.SlotsHandler
	Jobs         *handlers.JobsHandler
	Feed         *handlers.FeedHandler
	Webhooks     *handlers.AppointmentWebhookHandler

	MetricsHandler http.Handler
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Check)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Public token-addressed feed.
	if cfg.Feed != nil {
		r.Get("/agenda/feed/{token}", cfg.Feed.Get)
	}

	if cfg.Webhooks != nil {
		r.Post("/webhooks/appointments", cfg.Webhooks.Handle)
	}

	if cfg.Appointments != nil {
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", cfg.Appointments.Create)
			r.Get("/", cfg.Appointments.List)
			r.Route("/{appointmentID}", func(r chi.Router) {
				r.Get("/", cfg.Appointments.Get)
				r.Put("/", cfg.Appointments.Update)
				r.Delete("/", cfg.Appointments.Delete)
				r.Patch("/status", cfg.Appointments.UpdateStatus)
			})
		})
	}

	if cfg.Blocks != nil {
		r.Route("/blocks", func(r chi.Router) {
			r.Post("/", cfg.Blocks.Create)
			r.Route("/{blockID}", func(r chi.Router) {
				r.Get("/", cfg.Blocks.Get)
				r.Delete("/", cfg.Blocks.Delete)
			})
		})
	}

	r.Route("/professionals/{professionalID}", func(r chi.Router) {
		if cfg.Settings != nil {
			r.Get("/settings", cfg.Settings.Get)
			r.Put("/settings", cfg.Settings.Update)
		}
		if cfg.Blocks != nil {
			r.Get("/blocks", cfg.Blocks.List)
		}
		if cfg.Slots != nil {
			r.Get("/slots", cfg.Slots.Get)
		}
	})

	if cfg.Jobs != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/reminders", cfg.Jobs.RunReminders)
			r.Post("/followups", cfg.Jobs.RunFollowups)
			r.Post("/import", cfg.Jobs.RunImport)
		})
	}

	return r
}
