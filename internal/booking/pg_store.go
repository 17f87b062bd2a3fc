package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore implements Store on Postgres. Conditional transitions are expressed
// as UPDATE ... WHERE <expected state>; zero rows affected means the condition
// failed. BookSlot runs the slot flip and the appointment insert in one
// transaction.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const slotColumns = `slot_id, date, start_time, status, hold_expires_at, held_by, version`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.SlotID,
		&s.Date,
		&s.StartTime,
		&s.Status,
		&s.HoldExpiresAt,
		&s.HeldBy,
		&s.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

const appointmentColumns = `appointment_id, slot_id, phone_number, status, created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.AppointmentID,
		&a.SlotID,
		&a.PhoneNumber,
		&a.Status,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *PgStore) GetSlot(ctx context.Context, slotID string) (*Slot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE slot_id = $1
	`, slotID)
	return scanSlot(row)
}

func (s *PgStore) PutSlot(ctx context.Context, slot *Slot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO slots (slot_id, date, start_time, status, hold_expires_at, held_by, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (slot_id) DO NOTHING
	`, slot.SlotID, slot.Date, slot.StartTime, slot.Status, slot.HoldExpiresAt, slot.HeldBy, slot.Version)
	if err != nil {
		return fmt.Errorf("put slot: %w", err)
	}
	return nil
}

func (s *PgStore) ListSlots(ctx context.Context, status SlotStatus, date string) ([]Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE status = $1
	`
	args := []any{status}
	if date != "" {
		query += ` AND date = $2`
		args = append(args, date)
	}
	query += ` ORDER BY date, start_time`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlots(rows)
}

func (s *PgStore) ListExpiredHolds(ctx context.Context, now int64) ([]Slot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE status = $1 AND hold_expires_at <= $2
	`, SlotHeld, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlots(rows)
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	var result []Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// conditionClause renders cond as a WHERE fragment starting at placeholder $2
// ($1 is always slot_id).
func conditionClause(cond SlotCondition, args *[]any) string {
	clause := ""
	n := len(*args)
	next := func(v any) string {
		*args = append(*args, v)
		n++
		return fmt.Sprintf("$%d", n)
	}
	if cond.Status != "" {
		clause += ` AND status = ` + next(cond.Status)
	}
	if cond.HeldBy != "" {
		clause += ` AND held_by = ` + next(cond.HeldBy)
	}
	if cond.ExpiresAfter != 0 {
		clause += ` AND hold_expires_at > ` + next(cond.ExpiresAfter)
	}
	if cond.ExpiresAtOrBefore != 0 {
		clause += ` AND hold_expires_at <= ` + next(cond.ExpiresAtOrBefore)
	}
	return clause
}

func (s *PgStore) UpdateSlot(ctx context.Context, slotID string, cond SlotCondition, upd SlotUpdate) (*Slot, error) {
	args := []any{slotID}
	where := conditionClause(cond, &args)

	set := ` SET status = ` + appendArg(&args, upd.Status) +
		`, hold_expires_at = ` + appendArg(&args, upd.HoldExpiresAt) +
		`, held_by = ` + appendArg(&args, upd.HeldBy)
	if upd.BumpVersion {
		set += `, version = version + 1`
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE slots`+set+`
		WHERE slot_id = $1`+where+`
		RETURNING `+slotColumns,
		args...)

	slot, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		// Zero rows: either the slot is missing or the condition lost. The
		// engine distinguishes the two with a follow-up read.
		return nil, ErrConditionFailed
	}
	return slot, err
}

func appendArg(args *[]any, v any) string {
	*args = append(*args, v)
	return fmt.Sprintf("$%d", len(*args))
}

func (s *PgStore) ResetSlot(ctx context.Context, slotID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE slots
		SET status = $2, hold_expires_at = 0, held_by = ''
		WHERE slot_id = $1
	`, slotID, SlotAvailable)
	if err != nil {
		return fmt.Errorf("reset slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (s *PgStore) BookSlot(ctx context.Context, slotID string, cond SlotCondition, appt *Appointment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin book tx: %w", err)
	}
	defer tx.Rollback(ctx)

	args := []any{slotID}
	where := conditionClause(cond, &args)
	args = append(args, SlotBooked)

	tag, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE slots
		SET status = $%d, hold_expires_at = 0, held_by = ''
		WHERE slot_id = $1%s
	`, len(args), where), args...)
	if err != nil {
		return fmt.Errorf("book slot update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConditionFailed
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (appointment_id, slot_id, phone_number, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, appt.AppointmentID, appt.SlotID, appt.PhoneNumber, appt.Status, appt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit book tx: %w", err)
	}
	return nil
}

func (s *PgStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_id = $1
	`, id)
	return scanAppointment(row)
}

func (s *PgStore) ListAppointmentsByPhone(ctx context.Context, phone string) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE phone_number = $1
		ORDER BY created_at DESC
	`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PgStore) MarkAppointmentCancelled(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2
		WHERE appointment_id = $1 AND status = $3
		RETURNING `+appointmentColumns,
		id, StatusCancelled, StatusConfirmed)
	return scanAppointment(row)
}
