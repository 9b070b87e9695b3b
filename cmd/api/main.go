package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/medpratica/agenda-service/internal/agenda"
	"github.com/medpratica/agenda-service/internal/api/router"
	appconfig "github.com/medpratica/agenda-service/internal/config"
	"github.com/medpratica/agenda-service/internal/feed"
	"github.com/medpratica/agenda-service/internal/gcal"
	"github.com/medpratica/agenda-service/internal/http/handlers"
	"github.com/medpratica/agenda-service/internal/notify"
	"github.com/medpratica/agenda-service/internal/observability/metrics"
	"github.com/medpratica/agenda-service/internal/reminder"
	"github.com/medpratica/agenda-service/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel, cfg.Env == "development")
	logger.Info("starting agenda-service API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	location, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Error("invalid clinic timezone", "timezone", cfg.ClinicTimezone, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Stores
	appointmentStore := agenda.NewAppointmentStore(pool)
	blockStore := agenda.NewBlockStore(pool)
	settingsStore := agenda.NewSettingsStore(pool, cfg.DefaultSlotMinutes)
	directory := agenda.NewProfessionalDirectory(pool)

	// Optional Redis cache for the calendar importer
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer func() { _ = redisClient.Close() }()
	}
	knownIDCache := gcal.NewKnownIDCache(redisClient, 0)

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)

	// Google Calendar integration
	tokens := &gcal.StaticTokenSource{AccessToken: cfg.GoogleAccessToken}
	syncer := gcal.NewSyncer(tokens, appointmentStore, settingsStore, cfg.GoogleCalendarID, location, jobMetrics, logger)
	importer := gcal.NewImporter(tokens, settingsStore, appointmentStore, blockStore, knownIDCache,
		cfg.GoogleCalendarID, cfg.GCalImportWindowDays, location, jobMetrics, logger)

	// Notifications
	sender := notify.NewWebhookSender(cfg.NotifyWebhookURL, cfg.NotifyWebhookToken, cfg.NotifyTimeout, logger)
	worker := reminder.NewWorker(appointmentStore, sender, location, jobMetrics, logger)

	// Calendar feed
	publisher := feed.NewPublisher(settingsStore, appointmentStore, blockStore, directory, location, logger)

	r := router.New(&router.Config{
		Health:         handlers.NewHealthHandler(pool),
		Appointments:   handlers.NewAppointmentHandler(appointmentStore, syncer, logger),
		Blocks:         handlers.NewBlockHandler(blockStore, logger),
		Settings:       handlers.NewSettingsHandler(settingsStore, logger),
		Slots:          handlers.NewSlotsHandler(settingsStore, blockStore, appointmentStore, logger),
		Jobs:           handlers.NewJobsHandler(worker, importer, logger),
		Feed:           handlers.NewFeedHandler(publisher, logger),
		Webhooks:       handlers.NewAppointmentWebhookHandler(syncer, logger),
		MetricsHandler: promhttp.Handler(),
	})

	// Periodic calendar import, enabled by GCAL_IMPORT_INTERVAL.
	if cfg.GCalImportInterval > 0 {
		go runImportLoop(ctx, importer, cfg.GCalImportInterval, cfg.GCalTimeout, logger)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func runImportLoop(ctx context.Context, importer *gcal.Importer, interval, timeout time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			result, err := importer.ImportAll(runCtx, time.Now())
			cancel()
			if err != nil {
				logger.Error("periodic calendar import failed", "error", err)
				continue
			}
			logger.Info("periodic calendar import complete",
				"professionals", len(result.Items),
				"blocks_created", result.BlocksCreated,
			)
		}
	}
}
