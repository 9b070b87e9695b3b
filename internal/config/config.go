package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	ClinicTimezone string

	// Notification webhook (WhatsApp/SMS gateway). When NotifyWebhookURL is
	// empty the sender runs in mock mode: messages are logged, not delivered.
	NotifyWebhookURL   string
	NotifyWebhookToken string
	NotifyTimeout      time.Duration

	// Google Calendar integration. The token belongs to a single operator
	// account shared across all professionals.
	GoogleAccessToken    string
	GoogleCalendarID     string
	GCalImportWindowDays int
	GCalImportInterval   time.Duration
	GCalTimeout          time.Duration

	// Agenda defaults
	DefaultSlotMinutes int

	// Optional Redis cache for imported remote event ids
	RedisAddr     string
	RedisPassword string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		ClinicTimezone: getEnv("CLINIC_TIMEZONE", "America/Sao_Paulo"),

		NotifyWebhookURL:   getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyWebhookToken: getEnv("NOTIFY_WEBHOOK_TOKEN", ""),
		NotifyTimeout:      getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),

		GoogleAccessToken:    getEnv("GOOGLE_ACCESS_TOKEN", ""),
		GoogleCalendarID:     getEnv("GOOGLE_CALENDAR_ID", "primary"),
		GCalImportWindowDays: getEnvAsInt("GCAL_IMPORT_WINDOW_DAYS", 30),
		GCalImportInterval:   getEnvAsDuration("GCAL_IMPORT_INTERVAL", 0),
		GCalTimeout:          getEnvAsDuration("GCAL_TIMEOUT", 15*time.Second),

		DefaultSlotMinutes: getEnvAsInt("DEFAULT_SLOT_MINUTES", 30),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
