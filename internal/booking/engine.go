package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotUnavailable = errors.New("slot is not available to hold")
	ErrSlotConflict    = errors.New("slot is held or booked by someone else")

	// ErrReschedulePartialFailure means the old appointment was cancelled but
	// booking the new slot failed; the caller must re-attempt booking.
	ErrReschedulePartialFailure = errors.New("reschedule cancelled the old appointment but could not book the new slot")

	ErrNotificationFailure = errors.New("notification could not be delivered")
)

// Notifier delivers a text message to a phone number.
type Notifier interface {
	Send(ctx context.Context, to, body string) error
}

// Engine owns the slot state machine: AVAILABLE -> HELD -> BOOKED, with holds
// expiring back to AVAILABLE. Every transition is a conditional write against
// the store, so concurrent callers race safely: exactly one wins, the rest get
// a definite failure.
type Engine struct {
	store    Store
	notifier Notifier
	now      func() int64
}

func NewEngine(store Store, notifier Notifier) *Engine {
	return &Engine{
		store:    store,
		notifier: notifier,
		now:      func() int64 { return time.Now().Unix() },
	}
}

// WithClock overrides the engine's time source. Tests use this to expire holds
// without sleeping.
func (e *Engine) WithClock(now func() int64) *Engine {
	e.now = now
	return e
}

// Hold reserves an AVAILABLE slot for the caller until now+ttlSeconds. A
// repeat hold by the same caller before expiry refreshes the TTL instead of
// failing, and an expired hold the sweeper has not released yet can be taken
// over by any caller. Losing the race returns ErrSlotUnavailable.
func (e *Engine) Hold(ctx context.Context, slotID, caller string, ttlSeconds int64) (*Slot, error) {
	now := e.now()
	expiresAt := now + ttlSeconds

	slot, err := e.store.UpdateSlot(ctx, slotID,
		SlotCondition{Status: SlotAvailable},
		SlotUpdate{Status: SlotHeld, HoldExpiresAt: expiresAt, HeldBy: caller, BumpVersion: true})
	if err == nil {
		return slot, nil
	}
	if !errors.Is(err, ErrConditionFailed) {
		return nil, fmt.Errorf("hold slot %s: %w", slotID, err)
	}

	// Same caller re-holding a live hold: refresh, no version bump.
	slot, err = e.store.UpdateSlot(ctx, slotID,
		SlotCondition{Status: SlotHeld, HeldBy: caller, ExpiresAfter: now},
		SlotUpdate{Status: SlotHeld, HoldExpiresAt: expiresAt, HeldBy: caller})
	if err == nil {
		return slot, nil
	}
	if !errors.Is(err, ErrConditionFailed) {
		return nil, fmt.Errorf("refresh hold %s: %w", slotID, err)
	}

	// A dead hold the sweeper has not reached yet can be taken over directly.
	slot, err = e.store.UpdateSlot(ctx, slotID,
		SlotCondition{Status: SlotHeld, ExpiresAtOrBefore: now},
		SlotUpdate{Status: SlotHeld, HoldExpiresAt: expiresAt, HeldBy: caller, BumpVersion: true})
	if err == nil {
		return slot, nil
	}
	if !errors.Is(err, ErrConditionFailed) {
		return nil, fmt.Errorf("take over stale hold %s: %w", slotID, err)
	}

	if _, err := e.store.GetSlot(ctx, slotID); err != nil {
		return nil, err
	}
	return nil, ErrSlotUnavailable
}

// Confirm books a slot for the caller and creates the appointment record in
// one atomic write. It accepts a slot HELD by this caller (and not expired) or
// a slot still AVAILABLE (caller skipped the hold step); anything else is a
// conflict and no appointment record is created.
func (e *Engine) Confirm(ctx context.Context, slotID, caller string) (*Appointment, error) {
	now := e.now()
	appt := &Appointment{
		AppointmentID: uuid.New(),
		SlotID:        slotID,
		PhoneNumber:   caller,
		Status:        StatusConfirmed,
		CreatedAt:     time.Unix(now, 0).UTC(),
	}

	err := e.store.BookSlot(ctx, slotID,
		SlotCondition{Status: SlotHeld, HeldBy: caller, ExpiresAfter: now}, appt)
	if errors.Is(err, ErrConditionFailed) {
		err = e.store.BookSlot(ctx, slotID, SlotCondition{Status: SlotAvailable}, appt)
	}
	if errors.Is(err, ErrConditionFailed) {
		if _, getErr := e.store.GetSlot(ctx, slotID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrSlotConflict
	}
	if err != nil {
		return nil, fmt.Errorf("confirm slot %s: %w", slotID, err)
	}

	e.sendNotification(ctx, caller,
		fmt.Sprintf("Your appointment on %s is confirmed. Reference: %s", slotID, appt.AppointmentID))
	return appt, nil
}

// Cancel marks the appointment CANCELLED, returns its slot to AVAILABLE and
// notifies the caller. A second cancel of the same appointment returns
// ErrAppointmentNotFound without touching state.
func (e *Engine) Cancel(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := e.cancelRecord(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	e.sendNotification(ctx, appt.PhoneNumber,
		fmt.Sprintf("Your appointment on %s has been cancelled.", appt.SlotID))
	return appt, nil
}

func (e *Engine) cancelRecord(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := e.store.MarkAppointmentCancelled(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel appointment %s: %w", appointmentID, err)
	}

	// Unconditional reset: cancellation is caller-initiated and rare-conflict,
	// last-writer-wins is acceptable here.
	if err := e.store.ResetSlot(ctx, appt.SlotID); err != nil && !errors.Is(err, ErrSlotNotFound) {
		return nil, fmt.Errorf("release slot %s after cancel: %w", appt.SlotID, err)
	}
	return appt, nil
}

// Reschedule cancels the appointment and books newSlotID for the same caller.
// The two slots cannot be covered by one transaction, so the contract is
// best-effort sequential compensation: if the re-book fails after the cancel
// succeeded, ErrReschedulePartialFailure is returned and the caller must book
// again.
func (e *Engine) Reschedule(ctx context.Context, appointmentID uuid.UUID, newSlotID string) (*Appointment, error) {
	old, err := e.cancelRecord(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	appt := &Appointment{
		AppointmentID: uuid.New(),
		SlotID:        newSlotID,
		PhoneNumber:   old.PhoneNumber,
		Status:        StatusConfirmed,
		CreatedAt:     time.Unix(now, 0).UTC(),
	}
	if err := e.store.BookSlot(ctx, newSlotID, SlotCondition{Status: SlotAvailable}, appt); err != nil {
		return nil, fmt.Errorf("%w: slot %s: %v", ErrReschedulePartialFailure, newSlotID, err)
	}

	e.sendNotification(ctx, appt.PhoneNumber,
		fmt.Sprintf("Your appointment has been moved to %s. Reference: %s", newSlotID, appt.AppointmentID))
	return appt, nil
}

// Lookup returns all of a caller's appointments, most recent first.
func (e *Engine) Lookup(ctx context.Context, phone string) ([]Appointment, error) {
	appts, err := e.store.ListAppointmentsByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("lookup appointments for %s: %w", phone, err)
	}
	return appts, nil
}

// ListAvailable returns AVAILABLE slots ordered by (date, start_time),
// optionally filtered to one calendar date.
func (e *Engine) ListAvailable(ctx context.Context, date string) ([]Slot, error) {
	slots, err := e.store.ListSlots(ctx, SlotAvailable, date)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

// ResendConfirmation re-sends the confirmation text for the caller's most
// recent confirmed appointment.
func (e *Engine) ResendConfirmation(ctx context.Context, phone string) (*Appointment, error) {
	appts, err := e.Lookup(ctx, phone)
	if err != nil {
		return nil, err
	}
	for _, appt := range appts {
		if appt.Status != StatusConfirmed {
			continue
		}
		msg := fmt.Sprintf("Your appointment on %s is confirmed. Reference: %s", appt.SlotID, appt.AppointmentID)
		if err := e.notifier.Send(ctx, phone, msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotificationFailure, err)
		}
		return &appt, nil
	}
	return nil, ErrAppointmentNotFound
}

// sendNotification delivers a booking text; failures are logged, never fatal
// to the booking result.
func (e *Engine) sendNotification(ctx context.Context, to, body string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, to, body); err != nil {
		log.Printf("notification to %s failed: %v", to, err)
	}
}
