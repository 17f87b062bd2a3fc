package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotHeld      SlotStatus = "HELD"
	SlotBooked    SlotStatus = "BOOKED"
)

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

// Slot is the concurrency-control boundary: every status transition goes
// through a conditional write keyed on slot_id. The ID is derived from the
// calendar date and start time so slots sort naturally.
type Slot struct {
	SlotID        string
	Date          string // YYYY-MM-DD
	StartTime     string // HH:MM
	Status        SlotStatus
	HoldExpiresAt int64  // epoch seconds, set only while HELD
	HeldBy        string // caller phone, set only while HELD
	Version       int64  // bumped on every successful hold
}

// SlotID composes the natural key for a calendar slot.
func SlotID(date, startTime string) string {
	return fmt.Sprintf("%s-%s", date, startTime)
}

// Appointment is the durable booking record created when a slot is confirmed.
// Cancellation marks the record CANCELLED and retains it.
type Appointment struct {
	AppointmentID uuid.UUID
	SlotID        string
	PhoneNumber   string
	Status        AppointmentStatus
	CreatedAt     time.Time
}
