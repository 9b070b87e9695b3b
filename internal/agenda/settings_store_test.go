package agenda

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingsRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"professional_id", "weekly_schedule", "slot_duration_minutes",
		"external_sync_enabled", "external_sync_types", "feed_token", "feed_enabled",
		"created_at", "updated_at",
	})
}

func TestSettingsGetOrCreateExisting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSettingsStore(mock, 30)

	schedule := []byte(`{"1":[{"start":"08:00","end":"12:00","type":"all"}]}`)
	mock.ExpectQuery("FROM agenda_settings WHERE professional_id").
		WithArgs("prof-1").
		WillReturnRows(settingsRows().AddRow(
			"prof-1", schedule, 20, true, []string{"consulta"}, "tok", true,
			testTimestamp, testTimestamp))

	settings, err := store.GetOrCreate(context.Background(), "prof-1")
	require.NoError(t, err)
	assert.Equal(t, 20, settings.SlotDurationMinutes)
	require.Len(t, settings.WeeklySchedule[1], 1)
	assert.Equal(t, "08:00", settings.WeeklySchedule[1][0].Start)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsGetOrCreateLazy(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSettingsStore(mock, 30)

	mock.ExpectQuery("FROM agenda_settings WHERE professional_id").
		WithArgs("prof-2").
		WillReturnRows(settingsRows())
	mock.ExpectExec("INSERT INTO agenda_settings").
		WithArgs("prof-2", pgxmock.AnyArg(), 30, false, pgxmock.AnyArg(),
			pgxmock.AnyArg(), false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM agenda_settings WHERE professional_id").
		WithArgs("prof-2").
		WillReturnRows(settingsRows().AddRow(
			"prof-2", []byte(`{}`), 30, false, []string(nil), "sometoken", false,
			testTimestamp, testTimestamp))

	settings, err := store.GetOrCreate(context.Background(), "prof-2")
	require.NoError(t, err)
	assert.Equal(t, "prof-2", settings.ProfessionalID)
	assert.Equal(t, 30, settings.SlotDurationMinutes)
	assert.False(t, settings.ExternalSyncEnabled)
	assert.NotEmpty(t, settings.FeedToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsGetByFeedTokenNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSettingsStore(mock, 30)

	mock.ExpectQuery("WHERE feed_token").
		WithArgs("nope").
		WillReturnRows(settingsRows())

	_, err = store.GetByFeedToken(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewFeedTokenUnique(t *testing.T) {
	assert.NotEqual(t, newFeedToken(), newFeedToken())
	assert.Len(t, newFeedToken(), 40)
}
