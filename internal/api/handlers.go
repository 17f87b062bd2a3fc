package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/techclinic/voice-receptionist/internal/booking"
	"github.com/techclinic/voice-receptionist/internal/chat"
)

func listSlotsHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := engine.ListAvailable(r.Context(), r.URL.Query().Get("date"))
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, slotResponse(&s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func holdSlotHandler(engine *booking.Engine, defaultTTLSeconds int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HoldSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.SlotID == "" || req.PhoneNumber == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "slot_id and phone_number are required")
			return
		}
		ttl := req.HoldSeconds
		if ttl <= 0 {
			ttl = defaultTTLSeconds
		}

		slot, err := engine.Hold(r.Context(), req.SlotID, req.PhoneNumber, ttl)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, slotResponse(slot))
	}
}

func confirmAppointmentHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConfirmAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.SlotID == "" || req.PhoneNumber == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "slot_id and phone_number are required")
			return
		}

		appt, err := engine.Confirm(r.Context(), req.SlotID, req.PhoneNumber)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, appointmentResponse(appt))
	}
}

func listAppointmentsHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phone := r.URL.Query().Get("phone")
		if phone == "" {
			writeError(w, http.StatusBadRequest, "missing_phone", "phone query parameter is required")
			return
		}

		appts, err := engine.Lookup(r.Context(), phone)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		resp := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			resp = append(resp, appointmentResponse(&a))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelAppointmentHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := engine.Cancel(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}
		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.NewSlotID == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "new_slot_id is required")
			return
		}

		appt, err := engine.Reschedule(r.Context(), id, req.NewSlotID)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func chatHandler(responder *chat.Responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.PhoneNumber == "" || req.Message == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "phone_number and message are required")
			return
		}

		reply, err := responder.Respond(r.Context(), req.PhoneNumber, req.Message)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "chat_failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, ChatResponse{Reply: reply})
	}
}

func chatResetHandler(responder *chat.Responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.PhoneNumber == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "phone_number is required")
			return
		}
		if err := responder.Reset(r.Context(), req.PhoneNumber); err != nil {
			writeError(w, http.StatusInternalServerError, "chat_reset_failed", err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, booking.ErrReschedulePartialFailure):
		writeError(w, http.StatusConflict, "reschedule_partial_failure", err.Error())
	case errors.Is(err, booking.ErrNotificationFailure):
		writeError(w, http.StatusBadGateway, "notification_failure", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func slotResponse(s *booking.Slot) SlotResponse {
	return SlotResponse{
		SlotID:        s.SlotID,
		Date:          s.Date,
		StartTime:     s.StartTime,
		Status:        string(s.Status),
		HoldExpiresAt: s.HoldExpiresAt,
		Version:       s.Version,
	}
}

func appointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		AppointmentID: a.AppointmentID.String(),
		SlotID:        a.SlotID,
		PhoneNumber:   a.PhoneNumber,
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt.Unix(),
	}
}
