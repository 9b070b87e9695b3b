package agenda

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const settingsColumns = `professional_id, weekly_schedule, slot_duration_minutes,
		external_sync_enabled, external_sync_types, feed_token, feed_enabled, created_at, updated_at`

// SettingsStore provides access to per-professional agenda settings. Rows are
// created lazily with defaults on first access.
type SettingsStore struct {
	db                 DB
	defaultSlotMinutes int
}

// NewSettingsStore creates a new settings store.
func NewSettingsStore(db DB, defaultSlotMinutes int) *SettingsStore {
	if defaultSlotMinutes <= 0 {
		defaultSlotMinutes = 30
	}
	return &SettingsStore{db: db, defaultSlotMinutes: defaultSlotMinutes}
}

// GetOrCreate returns the settings row for a professional, creating it with
// defaults (empty weekly schedule, sync and feed disabled) when absent.
func (s *SettingsStore) GetOrCreate(ctx context.Context, professionalID string) (*AgendaSettings, error) {
	settings, err := s.get(ctx, professionalID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("agenda: get settings: %w", err)
	}

	now := time.Now().UTC()
	settings = &AgendaSettings{
		ProfessionalID:      professionalID,
		WeeklySchedule:      WeeklySchedule{},
		SlotDurationMinutes: s.defaultSlotMinutes,
		FeedToken:           newFeedToken(),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	scheduleJSON, err := json.Marshal(settings.WeeklySchedule)
	if err != nil {
		return nil, fmt.Errorf("agenda: marshal weekly schedule: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO agenda_settings (professional_id, weekly_schedule, slot_duration_minutes,
			external_sync_enabled, external_sync_types, feed_token, feed_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (professional_id) DO NOTHING`,
		settings.ProfessionalID, scheduleJSON, settings.SlotDurationMinutes,
		settings.ExternalSyncEnabled, settings.ExternalSyncTypes,
		settings.FeedToken, settings.FeedEnabled, settings.CreatedAt, settings.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("agenda: create settings: %w", err)
	}

	// A concurrent first access may have won the insert; re-read either way.
	settings, err = s.get(ctx, professionalID)
	if err != nil {
		return nil, fmt.Errorf("agenda: reread settings: %w", err)
	}
	return settings, nil
}

// Update rewrites a settings row.
func (s *SettingsStore) Update(ctx context.Context, settings *AgendaSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	scheduleJSON, err := json.Marshal(settings.WeeklySchedule)
	if err != nil {
		return fmt.Errorf("agenda: marshal weekly schedule: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE agenda_settings
		SET weekly_schedule = $2, slot_duration_minutes = $3, external_sync_enabled = $4,
			external_sync_types = $5, feed_token = $6, feed_enabled = $7, updated_at = $8
		WHERE professional_id = $1`,
		settings.ProfessionalID, scheduleJSON, settings.SlotDurationMinutes,
		settings.ExternalSyncEnabled, settings.ExternalSyncTypes,
		settings.FeedToken, settings.FeedEnabled, settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("agenda: update settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByFeedToken resolves settings by feed token or returns ErrNotFound.
// Callers are responsible for checking FeedEnabled.
func (s *SettingsStore) GetByFeedToken(ctx context.Context, token string) (*AgendaSettings, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+settingsColumns+`
		FROM agenda_settings WHERE feed_token = $1`, token)
	settings, err := scanSettings(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("agenda: get settings by feed token: %w", err)
	}
	return settings, nil
}

// ListSyncEnabled returns settings of every professional with external sync on.
func (s *SettingsStore) ListSyncEnabled(ctx context.Context) ([]AgendaSettings, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+settingsColumns+`
		FROM agenda_settings WHERE external_sync_enabled = TRUE
		ORDER BY professional_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("agenda: list sync enabled: %w", err)
	}
	defer rows.Close()

	var out []AgendaSettings
	for rows.Next() {
		settings, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("agenda: scan settings: %w", err)
		}
		out = append(out, *settings)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agenda: list sync enabled: %w", err)
	}
	return out, nil
}

func (s *SettingsStore) get(ctx context.Context, professionalID string) (*AgendaSettings, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+settingsColumns+`
		FROM agenda_settings WHERE professional_id = $1`, professionalID)
	return scanSettings(row)
}

func scanSettings(row pgx.Row) (*AgendaSettings, error) {
	var settings AgendaSettings
	var scheduleJSON []byte
	err := row.Scan(
		&settings.ProfessionalID, &scheduleJSON, &settings.SlotDurationMinutes,
		&settings.ExternalSyncEnabled, &settings.ExternalSyncTypes,
		&settings.FeedToken, &settings.FeedEnabled, &settings.CreatedAt, &settings.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	settings.WeeklySchedule = WeeklySchedule{}
	if len(scheduleJSON) > 0 {
		if err := json.Unmarshal(scheduleJSON, &settings.WeeklySchedule); err != nil {
			return nil, fmt.Errorf("agenda: unmarshal weekly schedule: %w", err)
		}
	}
	return &settings, nil
}

func newFeedToken() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand does not fail on supported platforms
	}
	return hex.EncodeToString(buf)
}
