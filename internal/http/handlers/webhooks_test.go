package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medpratica/agenda-service/internal/gcal"
)

func TestWebhookMapsCreateEvent(t *testing.T) {
	sync := &fakeDispatcher{}
	h := NewAppointmentWebhookHandler(sync, nil)

	body := `{"event":{"type":"create"},"data":{"professional_id":"prof-1","patient_name":"Ana","date":"2024-06-10","start_time":"09:00"}}`
	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodPost, "/webhooks/appointments", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sync.events, 1)
	assert.Equal(t, gcal.ChangeCreate, sync.events[0].Type)
	assert.Equal(t, "Ana", sync.events[0].New.PatientName)
}

func TestWebhookMapsDeleteEventFromOldData(t *testing.T) {
	sync := &fakeDispatcher{}
	h := NewAppointmentWebhookHandler(sync, nil)

	body := `{"event":{"type":"delete"},"old_data":{"professional_id":"prof-1","patient_name":"Ana","date":"2024-06-10","start_time":"09:00","external_event_id":"abc123"}}`
	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodPost, "/webhooks/appointments", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sync.events, 1)
	assert.Equal(t, gcal.ChangeDelete, sync.events[0].Type)
	require.NotNil(t, sync.events[0].Old.ExternalEventID)
	assert.Equal(t, "abc123", *sync.events[0].Old.ExternalEventID)
}

func TestWebhookRejectsUnknownEventType(t *testing.T) {
	h := NewAppointmentWebhookHandler(&fakeDispatcher{}, nil)

	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodPost, "/webhooks/appointments",
		bytes.NewBufferString(`{"event":{"type":"upsert"},"data":{}}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRejectsCreateWithoutData(t *testing.T) {
	h := NewAppointmentWebhookHandler(&fakeDispatcher{}, nil)

	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodPost, "/webhooks/appointments",
		bytes.NewBufferString(`{"event":{"type":"create"}}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
