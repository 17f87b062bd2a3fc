package agent

// ToolSpec is a provider-neutral tool definition. The text agent converts
// specs to genai declarations; the live session marshals them into its setup
// frame.
type ToolSpec struct {
	Name        string
	Description string
	Params      map[string]ParamSpec
	Required    []string
}

type ParamSpec struct {
	Type        string // "string" or "integer"
	Description string
}

// ToolSpecs is the fixed tool surface the booking engine exposes to the agent.
func ToolSpecs() []ToolSpec {
	return []ToolSpec{
		{
			Name:        "get_available_slots",
			Description: "List open appointment slots, optionally for one calendar date.",
			Params: map[string]ParamSpec{
				"date": {Type: "string", Description: "Calendar date YYYY-MM-DD; omit for all dates."},
			},
		},
		{
			Name:        "hold_slot",
			Description: "Temporarily reserve a slot for the caller before confirming.",
			Params: map[string]ParamSpec{
				"slot_id":      {Type: "string", Description: "Slot identifier, e.g. 2026-02-24-09:00."},
				"phone_number": {Type: "string", Description: "Caller phone number; defaults to the active caller."},
				"hold_seconds": {Type: "integer", Description: "How long to hold the slot; defaults to the clinic policy."},
			},
			Required: []string{"slot_id"},
		},
		{
			Name:        "confirm_appointment",
			Description: "Finalize a booking for a held or open slot.",
			Params: map[string]ParamSpec{
				"slot_id":      {Type: "string", Description: "Slot identifier to book."},
				"phone_number": {Type: "string", Description: "Caller phone number; defaults to the active caller."},
			},
			Required: []string{"slot_id"},
		},
		{
			Name:        "get_appointments_by_phone",
			Description: "Look up the caller's appointments, most recent first.",
			Params: map[string]ParamSpec{
				"phone_number": {Type: "string", Description: "Caller phone number; defaults to the active caller."},
			},
		},
		{
			Name:        "cancel_appointment",
			Description: "Cancel an existing appointment and free its slot.",
			Params: map[string]ParamSpec{
				"appointment_id": {Type: "string", Description: "Appointment reference id."},
			},
			Required: []string{"appointment_id"},
		},
		{
			Name:        "reschedule_appointment",
			Description: "Move an existing appointment to a new open slot.",
			Params: map[string]ParamSpec{
				"appointment_id": {Type: "string", Description: "Appointment reference id."},
				"new_slot_id":    {Type: "string", Description: "Slot identifier of the new time."},
			},
			Required: []string{"appointment_id", "new_slot_id"},
		},
		{
			Name:        "resend_confirmation",
			Description: "Re-send the confirmation text for the caller's latest confirmed appointment.",
			Params: map[string]ParamSpec{
				"phone_number": {Type: "string", Description: "Caller phone number; defaults to the active caller."},
			},
		},
	}
}
