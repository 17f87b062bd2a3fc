package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techclinic/voice-receptionist/internal/agent"
	"github.com/techclinic/voice-receptionist/internal/booking"
	"github.com/techclinic/voice-receptionist/internal/chat"
)

func newTestRouter(t *testing.T) (http.Handler, *booking.MemStore) {
	t.Helper()
	store := booking.NewMemStore()
	engine := booking.NewEngine(store, nil)
	responder := chat.NewResponder(engine, &agent.Mock{Reply: "Happy to help."},
		chat.NewMemHistory(), 30*time.Second)

	router := NewRouter(RouterConfig{
		Engine:     engine,
		Responder:  responder,
		HoldTTL:    30 * time.Second,
		PublicHost: "clinic.example.com",
		Env:        "test",
		Version:    "test",
	})
	return router, store
}

func seedSlot(t *testing.T, store *booking.MemStore, date, start string) string {
	t.Helper()
	id := booking.SlotID(date, start)
	err := store.PutSlot(context.Background(), &booking.Slot{
		SlotID:    id,
		Date:      date,
		StartTime: start,
		Status:    booking.SlotAvailable,
	})
	require.NoError(t, err)
	return id
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestListSlots(t *testing.T) {
	router, store := newTestRouter(t)
	seedSlot(t, store, "2026-02-24", "10:00")
	seedSlot(t, store, "2026-02-24", "09:00")
	seedSlot(t, store, "2026-02-25", "09:00")

	rec := doJSON(t, router, http.MethodGet, "/slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[[]SlotResponse](t, rec)
	require.Len(t, slots, 3)
	assert.Equal(t, "2026-02-24-09:00", slots[0].SlotID)

	rec = doJSON(t, router, http.MethodGet, "/slots?date=2026-02-25", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots = decode[[]SlotResponse](t, rec)
	require.Len(t, slots, 1)
	assert.Equal(t, "2026-02-25", slots[0].Date)
}

func TestHoldSlot(t *testing.T) {
	router, store := newTestRouter(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	rec := doJSON(t, router, http.MethodPost, "/slots/hold", HoldSlotRequest{
		SlotID:      id,
		PhoneNumber: "+15550001111",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	slot := decode[SlotResponse](t, rec)
	assert.Equal(t, "HELD", slot.Status)
	assert.NotZero(t, slot.HoldExpiresAt)

	// A competing hold is a definite conflict, not an error.
	rec = doJSON(t, router, http.MethodPost, "/slots/hold", HoldSlotRequest{
		SlotID:      id,
		PhoneNumber: "+15550002222",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", decode[ErrorResponse](t, rec).Error)
}

func TestHoldSlotValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/slots/hold", HoldSlotRequest{SlotID: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/slots/hold", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHoldUnknownSlot(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/slots/hold", HoldSlotRequest{
		SlotID:      "2026-02-24-23:00",
		PhoneNumber: "+15550001111",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "slot_not_found", decode[ErrorResponse](t, rec).Error)
}

func TestConfirmAndListAppointments(t *testing.T) {
	router, store := newTestRouter(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	rec := doJSON(t, router, http.MethodPost, "/appointments/confirm", ConfirmAppointmentRequest{
		SlotID:      id,
		PhoneNumber: "+15550001111",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "CONFIRMED", appt.Status)
	assert.Equal(t, id, appt.SlotID)

	// Second confirm on the booked slot conflicts.
	rec = doJSON(t, router, http.MethodPost, "/appointments/confirm", ConfirmAppointmentRequest{
		SlotID:      id,
		PhoneNumber: "+15550002222",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_conflict", decode[ErrorResponse](t, rec).Error)

	rec = doJSON(t, router, http.MethodGet, "/appointments?phone="+url.QueryEscape("+15550001111"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	appts := decode[[]AppointmentResponse](t, rec)
	require.Len(t, appts, 1)
	assert.Equal(t, appt.AppointmentID, appts[0].AppointmentID)

	rec = doJSON(t, router, http.MethodGet, "/appointments", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelAppointment(t *testing.T) {
	router, store := newTestRouter(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	rec := doJSON(t, router, http.MethodPost, "/appointments/confirm", ConfirmAppointmentRequest{
		SlotID:      id,
		PhoneNumber: "+15550001111",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decode[AppointmentResponse](t, rec)

	rec = doJSON(t, router, http.MethodPost, "/appointments/"+appt.AppointmentID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", decode[AppointmentResponse](t, rec).Status)

	// Cancelling again finds nothing to cancel.
	rec = doJSON(t, router, http.MethodPost, "/appointments/"+appt.AppointmentID+"/cancel", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "appointment_not_found", decode[ErrorResponse](t, rec).Error)

	rec = doJSON(t, router, http.MethodPost, "/appointments/not-a-uuid/cancel", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRescheduleAppointment(t *testing.T) {
	router, store := newTestRouter(t)
	first := seedSlot(t, store, "2026-02-24", "09:00")
	second := seedSlot(t, store, "2026-02-24", "10:00")

	rec := doJSON(t, router, http.MethodPost, "/appointments/confirm", ConfirmAppointmentRequest{
		SlotID:      first,
		PhoneNumber: "+15550001111",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decode[AppointmentResponse](t, rec)

	rec = doJSON(t, router, http.MethodPost, "/appointments/"+appt.AppointmentID+"/reschedule",
		RescheduleRequest{NewSlotID: second})
	require.Equal(t, http.StatusOK, rec.Code)
	moved := decode[AppointmentResponse](t, rec)
	assert.Equal(t, second, moved.SlotID)
	assert.NotEqual(t, appt.AppointmentID, moved.AppointmentID)
}

func TestReschedulePartialFailureSurfaced(t *testing.T) {
	router, store := newTestRouter(t)
	first := seedSlot(t, store, "2026-02-24", "09:00")
	second := seedSlot(t, store, "2026-02-24", "10:00")

	rec := doJSON(t, router, http.MethodPost, "/appointments/confirm", ConfirmAppointmentRequest{
		SlotID:      first,
		PhoneNumber: "+15550001111",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decode[AppointmentResponse](t, rec)

	// The target slot gets booked out from under the reschedule.
	rec = doJSON(t, router, http.MethodPost, "/appointments/confirm", ConfirmAppointmentRequest{
		SlotID:      second,
		PhoneNumber: "+15550002222",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/appointments/"+appt.AppointmentID+"/reschedule",
		RescheduleRequest{NewSlotID: second})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "reschedule_partial_failure", decode[ErrorResponse](t, rec).Error)
}

func TestChatEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/chat", ChatRequest{
		PhoneNumber: "+15550001111",
		Message:     "Do you have anything Tuesday?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Happy to help.", decode[ChatResponse](t, rec).Reply)

	rec = doJSON(t, router, http.MethodPost, "/chat", ChatRequest{Message: "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSMSWebhookRepliesWithTwiML(t *testing.T) {
	router, _ := newTestRouter(t)

	form := url.Values{}
	form.Set("From", "+15550001111")
	form.Set("Body", "Do you have anything Tuesday?")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<Message>Happy to help.</Message>")
}

func TestVoiceWebhookPointsAtMediaStream(t *testing.T) {
	router, _ := newTestRouter(t)

	form := url.Values{}
	form.Set("From", "+15550001111")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `wss://clinic.example.com/media-stream`)
	assert.Contains(t, body, `<Parameter name="callerPhone" value="+15550001111"/>`)
}

func TestRequestIDPropagation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/slots", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/slots", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
