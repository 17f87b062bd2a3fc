package agent

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/techclinic/voice-receptionist/internal/booking"
)

// Gateway exposes the booking engine as callable tools for the conversational
// agent. One Gateway is created per call or conversation and carries that
// caller's phone number; it is never shared across callers.
type Gateway struct {
	engine      *booking.Engine
	callerPhone string
	holdTTL     time.Duration
}

func NewGateway(engine *booking.Engine, callerPhone string, holdTTL time.Duration) *Gateway {
	return &Gateway{
		engine:      engine,
		callerPhone: callerPhone,
		holdTTL:     holdTTL,
	}
}

// Dispatch runs one tool call and returns a JSON-serializable result. Every
// result carries success and message so the agent can narrate failures to the
// caller; engine errors never propagate as opaque faults.
func (g *Gateway) Dispatch(ctx context.Context, name string, args map[string]any) map[string]any {
	log.Printf("tool call name=%s caller=%s", name, g.callerPhone)

	switch name {
	case "get_available_slots":
		return g.getAvailableSlots(ctx, args)
	case "hold_slot":
		return g.holdSlot(ctx, args)
	case "confirm_appointment":
		return g.confirmAppointment(ctx, args)
	case "get_appointments_by_phone":
		return g.getAppointmentsByPhone(ctx, args)
	case "cancel_appointment":
		return g.cancelAppointment(ctx, args)
	case "reschedule_appointment":
		return g.rescheduleAppointment(ctx, args)
	case "resend_confirmation":
		return g.resendConfirmation(ctx, args)
	default:
		return failure("unknown tool: " + name)
	}
}

func (g *Gateway) getAvailableSlots(ctx context.Context, args map[string]any) map[string]any {
	date := stringArg(args, "date", "")
	slots, err := g.engine.ListAvailable(ctx, date)
	if err != nil {
		return toolError(err)
	}
	out := make([]map[string]any, 0, len(slots))
	for _, s := range slots {
		out = append(out, map[string]any{
			"slot_id":    s.SlotID,
			"date":       s.Date,
			"start_time": s.StartTime,
		})
	}
	return map[string]any{
		"success": true,
		"message": "available slots retrieved",
		"slots":   out,
	}
}

func (g *Gateway) holdSlot(ctx context.Context, args map[string]any) map[string]any {
	slotID := stringArg(args, "slot_id", "")
	if slotID == "" {
		return failure("slot_id is required")
	}
	phone := stringArg(args, "phone_number", g.callerPhone)
	ttl := int64(intArg(args, "hold_seconds", int(g.holdTTL.Seconds())))

	slot, err := g.engine.Hold(ctx, slotID, phone, ttl)
	if err != nil {
		return toolError(err)
	}
	return map[string]any{
		"success":         true,
		"message":         "slot held, confirm within " + time.Duration(ttl*int64(time.Second)).String(),
		"slot_id":         slot.SlotID,
		"hold_expires_at": slot.HoldExpiresAt,
	}
}

func (g *Gateway) confirmAppointment(ctx context.Context, args map[string]any) map[string]any {
	slotID := stringArg(args, "slot_id", "")
	if slotID == "" {
		return failure("slot_id is required")
	}
	phone := stringArg(args, "phone_number", g.callerPhone)

	appt, err := g.engine.Confirm(ctx, slotID, phone)
	if err != nil {
		return toolError(err)
	}
	return map[string]any{
		"success":        true,
		"message":        "appointment confirmed",
		"appointment_id": appt.AppointmentID.String(),
		"slot_id":        appt.SlotID,
	}
}

func (g *Gateway) getAppointmentsByPhone(ctx context.Context, args map[string]any) map[string]any {
	phone := stringArg(args, "phone_number", g.callerPhone)
	appts, err := g.engine.Lookup(ctx, phone)
	if err != nil {
		return toolError(err)
	}
	out := make([]map[string]any, 0, len(appts))
	for _, a := range appts {
		out = append(out, map[string]any{
			"appointment_id": a.AppointmentID.String(),
			"slot_id":        a.SlotID,
			"status":         string(a.Status),
			"created_at":     a.CreatedAt.Unix(),
		})
	}
	return map[string]any{
		"success":      true,
		"message":      "appointments retrieved",
		"appointments": out,
	}
}

func (g *Gateway) cancelAppointment(ctx context.Context, args map[string]any) map[string]any {
	id, err := uuid.Parse(stringArg(args, "appointment_id", ""))
	if err != nil {
		return failure("appointment_id must be a valid id")
	}
	appt, err := g.engine.Cancel(ctx, id)
	if err != nil {
		return toolError(err)
	}
	return map[string]any{
		"success": true,
		"message": "appointment cancelled",
		"slot_id": appt.SlotID,
	}
}

func (g *Gateway) rescheduleAppointment(ctx context.Context, args map[string]any) map[string]any {
	id, err := uuid.Parse(stringArg(args, "appointment_id", ""))
	if err != nil {
		return failure("appointment_id must be a valid id")
	}
	newSlotID := stringArg(args, "new_slot_id", "")
	if newSlotID == "" {
		return failure("new_slot_id is required")
	}
	appt, err := g.engine.Reschedule(ctx, id, newSlotID)
	if err != nil {
		return toolError(err)
	}
	return map[string]any{
		"success":        true,
		"message":        "appointment rescheduled",
		"appointment_id": appt.AppointmentID.String(),
		"slot_id":        appt.SlotID,
	}
}

func (g *Gateway) resendConfirmation(ctx context.Context, args map[string]any) map[string]any {
	phone := stringArg(args, "phone_number", g.callerPhone)
	appt, err := g.engine.ResendConfirmation(ctx, phone)
	if err != nil {
		return toolError(err)
	}
	return map[string]any{
		"success": true,
		"message": "confirmation re-sent",
		"slot_id": appt.SlotID,
	}
}

// toolError maps engine errors to caller-narratable results.
func toolError(err error) map[string]any {
	switch {
	case errors.Is(err, booking.ErrSlotUnavailable):
		return failure("that slot is no longer available; please pick another time")
	case errors.Is(err, booking.ErrSlotConflict):
		return failure("that slot was just taken by someone else; please pick another time")
	case errors.Is(err, booking.ErrSlotNotFound):
		return failure("no such slot")
	case errors.Is(err, booking.ErrAppointmentNotFound):
		return failure("no matching appointment was found")
	case errors.Is(err, booking.ErrReschedulePartialFailure):
		return failure("the old appointment was cancelled but the new slot could not be booked; please book again")
	case errors.Is(err, booking.ErrNotificationFailure):
		return failure("the confirmation text could not be delivered; please try again shortly")
	default:
		log.Printf("tool call store error: %v", err)
		return failure("something went wrong on our side; please try again")
	}
}

func failure(msg string) map[string]any {
	return map[string]any{"success": false, "message": msg}
}

func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
