package booking

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store with the same conditional-write semantics as
// PgStore. It backs the test suite and doubles as documentation for the
// two-step fallback shape when a transactional backend is unavailable.
type MemStore struct {
	mu           sync.Mutex
	slots        map[string]Slot
	appointments map[uuid.UUID]Appointment
}

func NewMemStore() *MemStore {
	return &MemStore{
		slots:        make(map[string]Slot),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (m *MemStore) GetSlot(_ context.Context, slotID string) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &slot, nil
}

func (m *MemStore) PutSlot(_ context.Context, slot *Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.slots[slot.SlotID]; exists {
		return nil
	}
	m.slots[slot.SlotID] = *slot
	return nil
}

func (m *MemStore) ListSlots(_ context.Context, status SlotStatus, date string) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Slot
	for _, slot := range m.slots {
		if slot.Status != status {
			continue
		}
		if date != "" && slot.Date != date {
			continue
		}
		result = append(result, slot)
	}
	sortSlots(result)
	return result, nil
}

func (m *MemStore) ListExpiredHolds(_ context.Context, now int64) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Slot
	for _, slot := range m.slots {
		if slot.Status == SlotHeld && slot.HoldExpiresAt <= now {
			result = append(result, slot)
		}
	}
	sortSlots(result)
	return result, nil
}

func sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Date != slots[j].Date {
			return slots[i].Date < slots[j].Date
		}
		return slots[i].StartTime < slots[j].StartTime
	})
}

func matches(slot Slot, cond SlotCondition) bool {
	if cond.Status != "" && slot.Status != cond.Status {
		return false
	}
	if cond.HeldBy != "" && slot.HeldBy != cond.HeldBy {
		return false
	}
	if cond.ExpiresAfter != 0 && slot.HoldExpiresAt <= cond.ExpiresAfter {
		return false
	}
	if cond.ExpiresAtOrBefore != 0 && slot.HoldExpiresAt > cond.ExpiresAtOrBefore {
		return false
	}
	return true
}

func (m *MemStore) UpdateSlot(_ context.Context, slotID string, cond SlotCondition, upd SlotUpdate) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[slotID]
	if !ok || !matches(slot, cond) {
		return nil, ErrConditionFailed
	}
	slot.Status = upd.Status
	slot.HoldExpiresAt = upd.HoldExpiresAt
	slot.HeldBy = upd.HeldBy
	if upd.BumpVersion {
		slot.Version++
	}
	m.slots[slotID] = slot
	return &slot, nil
}

func (m *MemStore) ResetSlot(_ context.Context, slotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	slot.Status = SlotAvailable
	slot.HoldExpiresAt = 0
	slot.HeldBy = ""
	m.slots[slotID] = slot
	return nil
}

func (m *MemStore) BookSlot(_ context.Context, slotID string, cond SlotCondition, appt *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[slotID]
	if !ok || !matches(slot, cond) {
		return ErrConditionFailed
	}
	slot.Status = SlotBooked
	slot.HoldExpiresAt = 0
	slot.HeldBy = ""
	m.slots[slotID] = slot
	m.appointments[appt.AppointmentID] = *appt
	return nil
}

func (m *MemStore) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &appt, nil
}

func (m *MemStore) ListAppointmentsByPhone(_ context.Context, phone string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Appointment
	for _, appt := range m.appointments {
		if appt.PhoneNumber == phone {
			result = append(result, appt)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemStore) MarkAppointmentCancelled(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[id]
	if !ok || appt.Status != StatusConfirmed {
		return nil, ErrAppointmentNotFound
	}
	appt.Status = StatusCancelled
	m.appointments[id] = appt
	return &appt, nil
}
