package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medpratica/agenda-service/internal/agenda"
	"github.com/medpratica/agenda-service/internal/gcal"
)

type fakeAppointmentStore struct {
	appointments map[uuid.UUID]*agenda.Appointment
	statusErr    error
}

func newFakeAppointmentStore() *fakeAppointmentStore {
	return &fakeAppointmentStore{appointments: make(map[uuid.UUID]*agenda.Appointment)}
}

func (f *fakeAppointmentStore) Create(_ context.Context, a *agenda.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = agenda.StatusAgendado
	}
	cp := *a
	f.appointments[a.ID] = &cp
	return nil
}

func (f *fakeAppointmentStore) GetByID(_ context.Context, id uuid.UUID) (*agenda.Appointment, error) {
	a, ok := f.appointments[id]
	if !ok {
		return nil, agenda.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAppointmentStore) Update(_ context.Context, a *agenda.Appointment) error {
	cp := *a
	f.appointments[a.ID] = &cp
	return nil
}

func (f *fakeAppointmentStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to agenda.Status) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	if !agenda.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", agenda.ErrInvalidTransition, from, to)
	}
	f.appointments[id].Status = to
	return nil
}

func (f *fakeAppointmentStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.appointments[id]; !ok {
		return agenda.ErrNotFound
	}
	delete(f.appointments, id)
	return nil
}

func (f *fakeAppointmentStore) ListByProfessionalRange(_ context.Context, professionalID, from, to string) ([]agenda.Appointment, error) {
	var out []agenda.Appointment
	for _, a := range f.appointments {
		if a.ProfessionalID == professionalID && a.Date >= from && a.Date <= to {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeDispatcher struct {
	events []gcal.ChangeEvent
	err    error
}

func (f *fakeDispatcher) HandleEvent(_ context.Context, event gcal.ChangeEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func newAppointmentRouter(store *fakeAppointmentStore, sync *fakeDispatcher) http.Handler {
	h := NewAppointmentHandler(store, sync, nil)
	r := chi.NewRouter()
	r.Post("/appointments", h.Create)
	r.Get("/appointments", h.List)
	r.Get("/appointments/{appointmentID}", h.Get)
	r.Put("/appointments/{appointmentID}", h.Update)
	r.Delete("/appointments/{appointmentID}", h.Delete)
	r.Patch("/appointments/{appointmentID}/status", h.UpdateStatus)
	return r
}

func TestCreateAppointmentDispatchesSync(t *testing.T) {
	store := newFakeAppointmentStore()
	sync := &fakeDispatcher{}
	router := newAppointmentRouter(store, sync)

	body := `{"professional_id":"prof-1","patient_name":"João Silva","date":"2024-06-10","start_time":"09:00","type":"consulta"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusCreated, rec.Code)

	var created agenda.Appointment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, agenda.StatusAgendado, created.Status)

	require.Len(t, sync.events, 1)
	assert.Equal(t, gcal.ChangeCreate, sync.events[0].Type)
	assert.Equal(t, "João Silva", sync.events[0].New.PatientName)
}

func TestCreateAppointmentValidation(t *testing.T) {
	router := newAppointmentRouter(newFakeAppointmentStore(), &fakeDispatcher{})

	body := `{"professional_id":"prof-1","patient_name":"Ana","date":"2024-06-10","start_time":"9am"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "start_time must be HH:MM")
}

func TestSyncFailureDoesNotFailCreate(t *testing.T) {
	store := newFakeAppointmentStore()
	sync := &fakeDispatcher{err: fmt.Errorf("calendar unavailable")}
	router := newAppointmentRouter(store, sync)

	body := `{"professional_id":"prof-1","patient_name":"Ana","date":"2024-06-10","start_time":"09:00"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestGetAppointmentNotFound(t *testing.T) {
	router := newAppointmentRouter(newFakeAppointmentStore(), &fakeDispatcher{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments/"+uuid.NewString(), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateAppointmentCarriesOldStateToSync(t *testing.T) {
	store := newFakeAppointmentStore()
	sync := &fakeDispatcher{}
	router := newAppointmentRouter(store, sync)

	appt := &agenda.Appointment{
		ProfessionalID: "prof-1",
		PatientName:    "Ana",
		Date:           "2024-06-10",
		StartTime:      "09:00",
	}
	require.NoError(t, store.Create(context.Background(), appt))

	body := `{"professional_id":"prof-1","patient_name":"Ana","date":"2024-06-11","start_time":"10:00"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/appointments/"+appt.ID.String(), bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sync.events, 1)
	assert.Equal(t, gcal.ChangeUpdate, sync.events[0].Type)
	assert.Equal(t, "2024-06-10", sync.events[0].Old.Date)
	assert.Equal(t, "2024-06-11", sync.events[0].New.Date)
}

func TestStatusTransitionHappyPath(t *testing.T) {
	store := newFakeAppointmentStore()
	sync := &fakeDispatcher{}
	router := newAppointmentRouter(store, sync)

	appt := &agenda.Appointment{ProfessionalID: "prof-1", PatientName: "Ana", Date: "2024-06-10", StartTime: "09:00"}
	require.NoError(t, store.Create(context.Background(), appt))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/appointments/"+appt.ID.String()+"/status",
		bytes.NewBufferString(`{"status":"recepcionado"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, agenda.StatusRecepcionado, store.appointments[appt.ID].Status)
	require.Len(t, sync.events, 1)
	assert.Equal(t, gcal.ChangeUpdate, sync.events[0].Type)
}

func TestStatusTransitionRejectsBackwards(t *testing.T) {
	store := newFakeAppointmentStore()
	router := newAppointmentRouter(store, &fakeDispatcher{})

	appt := &agenda.Appointment{ProfessionalID: "prof-1", PatientName: "Ana", Date: "2024-06-10", StartTime: "09:00", Status: agenda.StatusRealizado}
	require.NoError(t, store.Create(context.Background(), appt))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/appointments/"+appt.ID.String()+"/status",
		bytes.NewBufferString(`{"status":"agendado"}`)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStatusTransitionConflict(t *testing.T) {
	store := newFakeAppointmentStore()
	store.statusErr = fmt.Errorf("%w: raced", agenda.ErrStatusConflict)
	router := newAppointmentRouter(store, &fakeDispatcher{})

	appt := &agenda.Appointment{ProfessionalID: "prof-1", PatientName: "Ana", Date: "2024-06-10", StartTime: "09:00"}
	require.NoError(t, store.Create(context.Background(), appt))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/appointments/"+appt.ID.String()+"/status",
		bytes.NewBufferString(`{"status":"recepcionado"}`)))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteAppointmentDispatchesSyncWithOldState(t *testing.T) {
	store := newFakeAppointmentStore()
	sync := &fakeDispatcher{}
	router := newAppointmentRouter(store, sync)

	eventID := "abc123"
	appt := &agenda.Appointment{ProfessionalID: "prof-1", PatientName: "Ana", Date: "2024-06-10", StartTime: "09:00", ExternalEventID: &eventID}
	require.NoError(t, store.Create(context.Background(), appt))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/appointments/"+appt.ID.String(), nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, sync.events, 1)
	assert.Equal(t, gcal.ChangeDelete, sync.events[0].Type)
	require.NotNil(t, sync.events[0].Old.ExternalEventID)
	assert.Equal(t, "abc123", *sync.events[0].Old.ExternalEventID)
}

func TestListAppointmentsRequiresRange(t *testing.T) {
	router := newAppointmentRouter(newFakeAppointmentStore(), &fakeDispatcher{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments?professional_id=prof-1", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
