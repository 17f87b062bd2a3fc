package api

type HoldSlotRequest struct {
	SlotID      string `json:"slot_id"`
	PhoneNumber string `json:"phone_number"`
	HoldSeconds int64  `json:"hold_seconds,omitempty"`
}

type ConfirmAppointmentRequest struct {
	SlotID      string `json:"slot_id"`
	PhoneNumber string `json:"phone_number"`
}

type RescheduleRequest struct {
	NewSlotID string `json:"new_slot_id"`
}

type ChatRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type SlotResponse struct {
	SlotID        string `json:"slot_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	Status        string `json:"status"`
	HoldExpiresAt int64  `json:"hold_expires_at,omitempty"`
	Version       int64  `json:"version"`
}

type AppointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	SlotID        string `json:"slot_id"`
	PhoneNumber   string `json:"phone_number"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
