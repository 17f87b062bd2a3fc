package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (n *captureNotifier) Send(_ context.Context, to, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("carrier rejected message")
	}
	n.sent = append(n.sent, to+": "+body)
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func newTestEngine(t *testing.T) (*Engine, *MemStore, *captureNotifier) {
	t.Helper()
	store := NewMemStore()
	notifier := &captureNotifier{}
	engine := NewEngine(store, notifier).WithClock(func() int64 { return 1000 })
	return engine, store, notifier
}

func seedSlot(t *testing.T, store *MemStore, date, start string) string {
	t.Helper()
	id := SlotID(date, start)
	err := store.PutSlot(context.Background(), &Slot{
		SlotID:    id,
		Date:      date,
		StartTime: start,
		Status:    SlotAvailable,
	})
	require.NoError(t, err)
	return id
}

func TestHoldReservesAvailableSlot(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	slot, err := engine.Hold(context.Background(), id, "+15550001111", 30)
	require.NoError(t, err)

	assert.Equal(t, SlotHeld, slot.Status)
	assert.Equal(t, "+15550001111", slot.HeldBy)
	assert.Equal(t, int64(1030), slot.HoldExpiresAt)
	assert.Equal(t, int64(1), slot.Version)
}

func TestHoldRefreshBySameCaller(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	first, err := engine.Hold(context.Background(), id, "+15550001111", 30)
	require.NoError(t, err)

	engine.WithClock(func() int64 { return 1010 })
	second, err := engine.Hold(context.Background(), id, "+15550001111", 30)
	require.NoError(t, err)

	assert.Equal(t, int64(1040), second.HoldExpiresAt)
	// A refresh extends the hold without consuming another version.
	assert.Equal(t, first.Version, second.Version)
}

func TestHoldByOtherCallerFails(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	_, err := engine.Hold(context.Background(), id, "+15550001111", 30)
	require.NoError(t, err)

	_, err = engine.Hold(context.Background(), id, "+15550002222", 30)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestHoldExpiredHoldCanBeRetaken(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	_, err := engine.Hold(context.Background(), id, "+15550001111", 30)
	require.NoError(t, err)

	// Sweeper releases the stale hold, then another caller takes the slot.
	sweeper := NewSweeper(store, 0).WithClock(func() int64 { return 2000 })
	released, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	engine.WithClock(func() int64 { return 2000 })
	slot, err := engine.Hold(context.Background(), id, "+15550002222", 30)
	require.NoError(t, err)
	assert.Equal(t, "+15550002222", slot.HeldBy)
	assert.Equal(t, int64(2), slot.Version)
}

func TestHoldUnknownSlot(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Hold(context.Background(), "2026-02-24-23:00", "+15550001111", 30)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestConcurrentHoldsExactlyOneWinner(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	const callers = 50
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Hold(context.Background(), id, fmt.Sprintf("+1555000%04d", i), 30)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrSlotUnavailable)
		}
	}
	assert.Equal(t, 1, winners)

	slot, err := store.GetSlot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, SlotHeld, slot.Status)
	assert.Equal(t, int64(1), slot.Version)
}

func TestConfirmHeldSlot(t *testing.T) {
	engine, store, notifier := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	_, err := engine.Hold(context.Background(), id, "+15550001111", 30)
	require.NoError(t, err)

	appt, err := engine.Confirm(context.Background(), id, "+15550001111")
	require.NoError(t, err)

	assert.Equal(t, id, appt.SlotID)
	assert.Equal(t, StatusConfirmed, appt.Status)

	slot, err := store.GetSlot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, SlotBooked, slot.Status)
	assert.Empty(t, slot.HeldBy)

	stored, err := store.GetAppointment(context.Background(), appt.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, "+15550001111", stored.PhoneNumber)
	assert.Equal(t, 1, notifier.count())
}

func TestConfirmSkipsHoldWhenAvailable(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	appt, err := engine.Confirm(context.Background(), id, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, id, appt.SlotID)

	slot, err := store.GetSlot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, SlotBooked, slot.Status)
}

func TestConfirmConflictLeavesNoOrphanAppointment(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	_, err := engine.Hold(context.Background(), id, "+15550001111", 30)
	require.NoError(t, err)

	_, err = engine.Confirm(context.Background(), id, "+15550002222")
	assert.ErrorIs(t, err, ErrSlotConflict)

	appts, err := store.ListAppointmentsByPhone(context.Background(), "+15550002222")
	require.NoError(t, err)
	assert.Empty(t, appts)

	slot, err := store.GetSlot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, SlotHeld, slot.Status)
	assert.Equal(t, "+15550001111", slot.HeldBy)
}

func TestConfirmBookedSlotConflicts(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	_, err := engine.Confirm(context.Background(), id, "+15550001111")
	require.NoError(t, err)

	_, err = engine.Confirm(context.Background(), id, "+15550002222")
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestConfirmUnknownSlot(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Confirm(context.Background(), "2026-02-24-23:00", "+15550001111")
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestCancelFreesSlotAndRetainsRecord(t *testing.T) {
	engine, store, notifier := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	appt, err := engine.Confirm(context.Background(), id, "+15550001111")
	require.NoError(t, err)

	cancelled, err := engine.Cancel(context.Background(), appt.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	slot, err := store.GetSlot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, SlotAvailable, slot.Status)

	stored, err := store.GetAppointment(context.Background(), appt.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)

	// Confirm + cancel notifications.
	assert.Equal(t, 2, notifier.count())
}

func TestCancelTwiceFails(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	appt, err := engine.Confirm(context.Background(), id, "+15550001111")
	require.NoError(t, err)

	_, err = engine.Cancel(context.Background(), appt.AppointmentID)
	require.NoError(t, err)

	_, err = engine.Cancel(context.Background(), appt.AppointmentID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestCancelUnknownAppointment(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestRescheduleMovesAppointment(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	oldID := seedSlot(t, store, "2026-02-24", "09:00")
	newID := seedSlot(t, store, "2026-02-24", "10:00")

	appt, err := engine.Confirm(context.Background(), oldID, "+15550001111")
	require.NoError(t, err)

	moved, err := engine.Reschedule(context.Background(), appt.AppointmentID, newID)
	require.NoError(t, err)
	assert.Equal(t, newID, moved.SlotID)
	assert.Equal(t, "+15550001111", moved.PhoneNumber)
	assert.NotEqual(t, appt.AppointmentID, moved.AppointmentID)

	oldSlot, err := store.GetSlot(context.Background(), oldID)
	require.NoError(t, err)
	assert.Equal(t, SlotAvailable, oldSlot.Status)

	newSlot, err := store.GetSlot(context.Background(), newID)
	require.NoError(t, err)
	assert.Equal(t, SlotBooked, newSlot.Status)
}

func TestReschedulePartialFailure(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	oldID := seedSlot(t, store, "2026-02-24", "09:00")
	newID := seedSlot(t, store, "2026-02-24", "10:00")

	appt, err := engine.Confirm(context.Background(), oldID, "+15550001111")
	require.NoError(t, err)

	// Another caller books the target slot first.
	_, err = engine.Confirm(context.Background(), newID, "+15550002222")
	require.NoError(t, err)

	_, err = engine.Reschedule(context.Background(), appt.AppointmentID, newID)
	assert.ErrorIs(t, err, ErrReschedulePartialFailure)

	// The cancel half of the reschedule has landed; the caller must re-book.
	oldSlot, err := store.GetSlot(context.Background(), oldID)
	require.NoError(t, err)
	assert.Equal(t, SlotAvailable, oldSlot.Status)

	stored, err := store.GetAppointment(context.Background(), appt.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
}

func TestListAvailableAfterBookings(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	starts := []string{"16:00", "09:00", "14:00", "10:00", "11:00", "15:00", "12:00", "13:00"}
	for _, start := range starts {
		seedSlot(t, store, "2026-02-24", start)
	}
	for _, start := range []string{"10:00", "13:00", "16:00"} {
		_, err := engine.Confirm(context.Background(), SlotID("2026-02-24", start), "+15550001111")
		require.NoError(t, err)
	}

	// Eight seeded, three booked: exactly the remaining five, sorted by time.
	day, err := engine.ListAvailable(context.Background(), "2026-02-24")
	require.NoError(t, err)
	require.Len(t, day, 5)
	want := []string{"09:00", "11:00", "12:00", "14:00", "15:00"}
	for i, slot := range day {
		assert.Equal(t, want[i], slot.StartTime)
		assert.Equal(t, SlotAvailable, slot.Status)
	}
}

func TestListAvailableDateFilter(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	seedSlot(t, store, "2026-02-25", "10:00")
	seedSlot(t, store, "2026-02-24", "09:00")
	seedSlot(t, store, "2026-02-25", "09:00")

	all, err := engine.ListAvailable(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2026-02-24", all[0].Date)

	day, err := engine.ListAvailable(context.Background(), "2026-02-25")
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "09:00", day[0].StartTime)
	assert.Equal(t, "10:00", day[1].StartTime)
}

func TestConcurrentConfirmsOnDistinctSlotsPairExactly(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	const n = 20
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = seedSlot(t, store, "2026-02-24", fmt.Sprintf("%02d:00", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.Confirm(context.Background(), ids[i], fmt.Sprintf("+1555000%04d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Every booked slot has exactly one appointment referencing it.
	for i, id := range ids {
		slot, err := store.GetSlot(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, SlotBooked, slot.Status)

		appts, err := store.ListAppointmentsByPhone(context.Background(), fmt.Sprintf("+1555000%04d", i))
		require.NoError(t, err)
		require.Len(t, appts, 1)
		assert.Equal(t, id, appts[0].SlotID)
	}
}

func TestLookupMostRecentFirst(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	first := seedSlot(t, store, "2026-02-24", "09:00")
	second := seedSlot(t, store, "2026-02-25", "10:00")

	_, err := engine.Confirm(context.Background(), first, "+15550001111")
	require.NoError(t, err)

	engine.WithClock(func() int64 { return 2000 })
	_, err = engine.Confirm(context.Background(), second, "+15550001111")
	require.NoError(t, err)

	appts, err := engine.Lookup(context.Background(), "+15550001111")
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.Equal(t, second, appts[0].SlotID)
	assert.Equal(t, first, appts[1].SlotID)
}

func TestResendConfirmation(t *testing.T) {
	engine, store, notifier := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	appt, err := engine.Confirm(context.Background(), id, "+15550001111")
	require.NoError(t, err)

	resent, err := engine.ResendConfirmation(context.Background(), "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, appt.AppointmentID, resent.AppointmentID)
	assert.Equal(t, 2, notifier.count())
}

func TestResendConfirmationSkipsCancelled(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	appt, err := engine.Confirm(context.Background(), id, "+15550001111")
	require.NoError(t, err)
	_, err = engine.Cancel(context.Background(), appt.AppointmentID)
	require.NoError(t, err)

	_, err = engine.ResendConfirmation(context.Background(), "+15550001111")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestResendConfirmationDeliveryFailure(t *testing.T) {
	engine, store, notifier := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	_, err := engine.Confirm(context.Background(), id, "+15550001111")
	require.NoError(t, err)

	notifier.fail = true
	_, err = engine.ResendConfirmation(context.Background(), "+15550001111")
	assert.ErrorIs(t, err, ErrNotificationFailure)
}

func TestNotificationFailureDoesNotBlockBooking(t *testing.T) {
	engine, store, notifier := newTestEngine(t)
	id := seedSlot(t, store, "2026-02-24", "09:00")

	notifier.fail = true
	appt, err := engine.Confirm(context.Background(), id, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
}
