package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	calendar "google.golang.org/api/calendar/v3"

	"github.com/medpratica/agenda-service/internal/agenda"
)

type fakeSettingsLister struct {
	byProfessional map[string]*agenda.AgendaSettings
	err            error
}

func (f *fakeSettingsLister) GetOrCreate(_ context.Context, professionalID string) (*agenda.AgendaSettings, error) {
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.byProfessional[professionalID]; ok {
		cp := *s
		return &cp, nil
	}
	return &agenda.AgendaSettings{ProfessionalID: professionalID}, nil
}

func (f *fakeSettingsLister) ListSyncEnabled(context.Context) ([]agenda.AgendaSettings, error) {
	var out []agenda.AgendaSettings
	for _, s := range f.byProfessional {
		if s.ExternalSyncEnabled {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeKnownIDs struct {
	ids []string
}

func (f *fakeKnownIDs) ListKnownEventIDs(context.Context, string) ([]string, error) {
	return f.ids, nil
}

// fakeBlocks stores created blocks in memory and implements the content-key
// dedup the SQL store performs.
type fakeBlocks struct {
	blocks []agenda.ScheduleBlock
}

func (f *fakeBlocks) Create(_ context.Context, b *agenda.ScheduleBlock) error {
	f.blocks = append(f.blocks, *b)
	return nil
}

func (f *fakeBlocks) Exists(_ context.Context, professionalID, startDate string, startTime *string, reason string) (bool, error) {
	for _, b := range f.blocks {
		if b.ProfessionalID != professionalID || b.StartDate != startDate || b.Reason != reason {
			continue
		}
		if (b.StartTime == nil) != (startTime == nil) {
			continue
		}
		if startTime == nil || *b.StartTime == *startTime {
			return true, nil
		}
	}
	return false, nil
}

func eventsServer(t *testing.T, items []*calendar.Event) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		assert.Equal(t, "startTime", r.URL.Query().Get("orderBy"))
		assert.NotEmpty(t, r.URL.Query().Get("timeMin"))
		assert.NotEmpty(t, r.URL.Query().Get("timeMax"))
		_ = json.NewEncoder(w).Encode(&calendar.Events{Items: items})
	}))
	t.Cleanup(srv.Close)
	return srv
}

var importNow = time.Date(2024, 6, 9, 12, 0, 0, 0, time.UTC)

func syncEnabledSettings(professionalID string) *fakeSettingsLister {
	return &fakeSettingsLister{byProfessional: map[string]*agenda.AgendaSettings{
		professionalID: {ProfessionalID: professionalID, ExternalSyncEnabled: true},
	}}
}

func newTestImporter(srv *httptest.Server, settings SettingsLister, known KnownIDLister, blocks BlockWriter, cache *KnownIDCache, tokens TokenSource) *Importer {
	if tokens == nil {
		tokens = &StaticTokenSource{AccessToken: "tok"}
	}
	return NewImporter(tokens, settings, known, blocks, cache, "primary", 30, saoPaulo, nil, nil,
		WithEndpoint(srv.URL+"/"), WithHTTPClient(srv.Client()))
}

func TestImportCreatesBlocksForUnknownBusyEvents(t *testing.T) {
	items := []*calendar.Event{
		{
			Id:      "evt-timed",
			Summary: "Reunião",
			Start:   &calendar.EventDateTime{DateTime: "2024-06-15T14:00:00-03:00"},
			End:     &calendar.EventDateTime{DateTime: "2024-06-15T15:30:00-03:00"},
		},
		{
			Id:      "evt-allday",
			Summary: "Congresso",
			Start:   &calendar.EventDateTime{Date: "2024-06-20"},
			End:     &calendar.EventDateTime{Date: "2024-06-22"},
		},
		{
			Id:           "evt-free",
			Summary:      "Disponível",
			Transparency: "transparent",
			Start:        &calendar.EventDateTime{DateTime: "2024-06-16T10:00:00-03:00"},
		},
		{
			Id:      "evt-linked",
			Summary: "Consulta: João",
			Start:   &calendar.EventDateTime{DateTime: "2024-06-17T09:00:00-03:00"},
		},
	}
	srv := eventsServer(t, items)
	blocks := &fakeBlocks{}
	imp := newTestImporter(srv, syncEnabledSettings("prof-1"),
		&fakeKnownIDs{ids: []string{"evt-linked"}}, blocks, nil, nil)

	created, err := imp.ImportProfessional(context.Background(), "prof-1", importNow)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	require.Len(t, blocks.blocks, 2)

	timed := blocks.blocks[0]
	assert.Equal(t, "Google: Reunião", timed.Reason)
	assert.Equal(t, "2024-06-15", timed.StartDate)
	require.NotNil(t, timed.StartTime)
	assert.Equal(t, "14:00", *timed.StartTime)
	require.NotNil(t, timed.EndTime)
	assert.Equal(t, "15:30", *timed.EndTime)
	assert.False(t, timed.AllDay)
	require.NotNil(t, timed.ExternalEventID)
	assert.Equal(t, "evt-timed", *timed.ExternalEventID)

	allDay := blocks.blocks[1]
	assert.True(t, allDay.AllDay)
	assert.Equal(t, "2024-06-20", allDay.StartDate)
	// Google's all-day end date is exclusive.
	assert.Equal(t, "2024-06-21", allDay.EndDate)
	assert.Nil(t, allDay.StartTime)
}

func TestImportIsIdempotent(t *testing.T) {
	items := []*calendar.Event{{
		Id:      "evt-1",
		Summary: "Reunião",
		Start:   &calendar.EventDateTime{DateTime: "2024-06-15T14:00:00-03:00"},
		End:     &calendar.EventDateTime{DateTime: "2024-06-15T15:00:00-03:00"},
	}}
	srv := eventsServer(t, items)
	blocks := &fakeBlocks{}
	imp := newTestImporter(srv, syncEnabledSettings("prof-1"), &fakeKnownIDs{}, blocks, nil, nil)

	created, err := imp.ImportProfessional(context.Background(), "prof-1", importNow)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	created, err = imp.ImportProfessional(context.Background(), "prof-1", importNow)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, blocks.blocks, 1)
}

func TestImportFallbackReasonOcupado(t *testing.T) {
	items := []*calendar.Event{{
		Id:    "evt-untitled",
		Start: &calendar.EventDateTime{DateTime: "2024-06-15T08:00:00-03:00"},
		End:   &calendar.EventDateTime{DateTime: "2024-06-15T09:00:00-03:00"},
	}}
	srv := eventsServer(t, items)
	blocks := &fakeBlocks{}
	imp := newTestImporter(srv, syncEnabledSettings("prof-1"), &fakeKnownIDs{}, blocks, nil, nil)

	_, err := imp.ImportProfessional(context.Background(), "prof-1", importNow)
	require.NoError(t, err)
	require.Len(t, blocks.blocks, 1)
	assert.Equal(t, "Google: Ocupado", blocks.blocks[0].Reason)
}

func TestImportSkipsWhenSyncDisabled(t *testing.T) {
	srv := eventsServer(t, nil)
	settings := &fakeSettingsLister{byProfessional: map[string]*agenda.AgendaSettings{
		"prof-1": {ProfessionalID: "prof-1", ExternalSyncEnabled: false},
	}}
	imp := newTestImporter(srv, settings, &fakeKnownIDs{}, &fakeBlocks{}, nil, nil)

	created, err := imp.ImportProfessional(context.Background(), "prof-1", importNow)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestImportSkipsWhenNoToken(t *testing.T) {
	srv := eventsServer(t, nil)
	imp := newTestImporter(srv, syncEnabledSettings("prof-1"), &fakeKnownIDs{}, &fakeBlocks{}, nil,
		&StaticTokenSource{})

	created, err := imp.ImportProfessional(context.Background(), "prof-1", importNow)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

// failingTokens fails for one professional and succeeds for the rest.
type failingTokens struct {
	failFor string
}

func (f *failingTokens) Token(_ context.Context, professionalID string) (string, error) {
	if professionalID == f.failFor {
		return "", errors.New("token refresh failed")
	}
	return "tok", nil
}

func TestImportAllIsolatesPerProfessionalFailures(t *testing.T) {
	items := []*calendar.Event{{
		Id:      "evt-1",
		Summary: "Reunião",
		Start:   &calendar.EventDateTime{DateTime: "2024-06-15T14:00:00-03:00"},
		End:     &calendar.EventDateTime{DateTime: "2024-06-15T15:00:00-03:00"},
	}}
	srv := eventsServer(t, items)
	settings := &fakeSettingsLister{byProfessional: map[string]*agenda.AgendaSettings{
		"prof-ok":   {ProfessionalID: "prof-ok", ExternalSyncEnabled: true},
		"prof-fail": {ProfessionalID: "prof-fail", ExternalSyncEnabled: true},
	}}
	blocks := &fakeBlocks{}
	imp := newTestImporter(srv, settings, &fakeKnownIDs{}, blocks, nil, &failingTokens{failFor: "prof-fail"})

	result, err := imp.ImportAll(context.Background(), importNow)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, 1, result.BlocksCreated)

	for _, item := range result.Items {
		switch item.ProfessionalID {
		case "prof-ok":
			assert.Equal(t, 1, item.BlocksCreated)
			assert.Empty(t, item.Error)
		case "prof-fail":
			assert.Equal(t, 0, item.BlocksCreated)
			assert.NotEmpty(t, item.Error)
		}
	}
}

func TestKnownIDCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewKnownIDCache(client, time.Hour)
	ctx := context.Background()

	assert.Empty(t, cache.Known(ctx, "prof-1"))

	cache.Add(ctx, "prof-1", "evt-1", "evt-2")
	known := cache.Known(ctx, "prof-1")
	assert.True(t, known["evt-1"])
	assert.True(t, known["evt-2"])
	assert.False(t, known["evt-3"])

	// Other professionals have their own sets.
	assert.Empty(t, cache.Known(ctx, "prof-2"))

	// A nil cache is a silent no-op.
	var disabled *KnownIDCache
	assert.Empty(t, disabled.Known(ctx, "prof-1"))
	assert.NotPanics(t, func() { disabled.Add(ctx, "prof-1", "evt-9") })
}

func TestImportUsesCacheToSkipKnownEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewKnownIDCache(client, time.Hour)

	items := []*calendar.Event{{
		Id:      "evt-cached",
		Summary: "Reunião",
		Start:   &calendar.EventDateTime{DateTime: "2024-06-15T14:00:00-03:00"},
		End:     &calendar.EventDateTime{DateTime: "2024-06-15T15:00:00-03:00"},
	}}
	srv := eventsServer(t, items)
	blocks := &fakeBlocks{}
	imp := newTestImporter(srv, syncEnabledSettings("prof-1"), &fakeKnownIDs{}, blocks, cache, nil)

	created, err := imp.ImportProfessional(context.Background(), "prof-1", importNow)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	// Even if the block is removed locally, the cache remembers the event.
	blocks.blocks = nil
	created, err = imp.ImportProfessional(context.Background(), "prof-1", importNow)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}
