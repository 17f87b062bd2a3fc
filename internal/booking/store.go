package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrConditionFailed means a conditional write lost its race: the stored
	// record no longer matched the expected condition at write time.
	ErrConditionFailed = errors.New("store condition failed")
)

// SlotCondition is the expected state a conditional slot write is guarded by.
// Zero-valued fields are not checked.
type SlotCondition struct {
	Status SlotStatus
	HeldBy string
	// ExpiresAfter requires hold_expires_at > value (hold still live).
	ExpiresAfter int64
	// ExpiresAtOrBefore requires hold_expires_at <= value (hold stale).
	ExpiresAtOrBefore int64
}

// SlotUpdate describes the fields written when the condition holds.
type SlotUpdate struct {
	Status        SlotStatus
	HoldExpiresAt int64
	HeldBy        string
	BumpVersion   bool
}

// Store is the durable keyed storage the engine runs against. All slot
// transitions are linearized by UpdateSlot/BookSlot conditional semantics:
// exactly one concurrent writer wins, losers get ErrConditionFailed.
type Store interface {
	GetSlot(ctx context.Context, slotID string) (*Slot, error)
	PutSlot(ctx context.Context, slot *Slot) error

	// ListSlots returns slots with the given status, optionally filtered to
	// one calendar date, ordered by (date, start_time).
	ListSlots(ctx context.Context, status SlotStatus, date string) ([]Slot, error)

	// ListExpiredHolds returns HELD slots whose hold_expires_at <= now.
	ListExpiredHolds(ctx context.Context, now int64) ([]Slot, error)

	// UpdateSlot applies upd only if cond matches the stored record, returning
	// the updated slot. A lost race yields ErrConditionFailed.
	UpdateSlot(ctx context.Context, slotID string, cond SlotCondition, upd SlotUpdate) (*Slot, error)

	// ResetSlot unconditionally returns a slot to AVAILABLE, clearing hold
	// fields. Only the cancel path uses this; last-writer-wins is acceptable
	// there.
	ResetSlot(ctx context.Context, slotID string) error

	// BookSlot atomically flips the slot to BOOKED under cond and creates the
	// appointment record in the same transaction, so a crash can never leave a
	// BOOKED slot without an appointment or vice versa.
	BookSlot(ctx context.Context, slotID string, cond SlotCondition, appt *Appointment) error

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListAppointmentsByPhone returns a caller's appointments, most recent first.
	ListAppointmentsByPhone(ctx context.Context, phone string) ([]Appointment, error)

	// MarkAppointmentCancelled flips a CONFIRMED appointment to CANCELLED.
	// Returns ErrAppointmentNotFound if absent or already cancelled.
	MarkAppointmentCancelled(ctx context.Context, id uuid.UUID) (*Appointment, error)
}
