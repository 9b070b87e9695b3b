package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medpratica/agenda-service/internal/agenda"
)

type fakeSlotSettings struct {
	settings *agenda.AgendaSettings
}

func (f *fakeSlotSettings) GetOrCreate(context.Context, string) (*agenda.AgendaSettings, error) {
	cp := *f.settings
	return &cp, nil
}

type fakeSlotBlocks struct {
	blocks []agenda.ScheduleBlock
}

func (f *fakeSlotBlocks) ListByProfessional(context.Context, string) ([]agenda.ScheduleBlock, error) {
	return f.blocks, nil
}

func newSlotsRouter(settings *agenda.AgendaSettings, blocks []agenda.ScheduleBlock, appointments *fakeAppointmentStore) http.Handler {
	h := NewSlotsHandler(&fakeSlotSettings{settings: settings}, &fakeSlotBlocks{blocks: blocks}, appointments, nil)
	r := chi.NewRouter()
	r.Get("/professionals/{professionalID}/slots", h.Get)
	return r
}

func mondaySettings() *agenda.AgendaSettings {
	return &agenda.AgendaSettings{
		ProfessionalID:      "prof-1",
		SlotDurationMinutes: 30,
		WeeklySchedule: agenda.WeeklySchedule{
			1: {{Start: "09:00", End: "10:00", Type: "all"}},
		},
	}
}

func TestSlotsForOpenMonday(t *testing.T) {
	router := newSlotsRouter(mondaySettings(), nil, newFakeAppointmentStore())

	// 2024-06-10 is a Monday.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/professionals/prof-1/slots?date=2024-06-10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"start":"09:00"`)
	assert.Contains(t, rec.Body.String(), `"start":"09:30"`)
	assert.NotContains(t, rec.Body.String(), `"start":"10:00"`)
}

func TestSlotsExcludeBookedTime(t *testing.T) {
	store := newFakeAppointmentStore()
	require.NoError(t, store.Create(context.Background(), &agenda.Appointment{
		ProfessionalID: "prof-1",
		PatientName:    "Ana",
		Date:           "2024-06-10",
		StartTime:      "09:00",
	}))
	router := newSlotsRouter(mondaySettings(), nil, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/professionals/prof-1/slots?date=2024-06-10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"start":"09:00"`)
	assert.Contains(t, rec.Body.String(), `"start":"09:30"`)
}

func TestSlotsRequireValidDate(t *testing.T) {
	router := newSlotsRouter(mondaySettings(), nil, newFakeAppointmentStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/professionals/prof-1/slots?date=10-06-2024", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
