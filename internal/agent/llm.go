package agent

import "context"

// ReceptionistInstructions is the system prompt shared by the text and voice
// agents.
const ReceptionistInstructions = `You are a professional appointment scheduling assistant for The Tech Clinic.
Help callers check availability, book, cancel and reschedule appointments.

Rules:
1. To check availability, call 'get_available_slots'.
2. To start a booking, call 'hold_slot'.
3. To finalize, call 'confirm_appointment'.
4. If the caller's intent is unclear, ask clarifying questions politely.
5. Do not make up information; always use the provided tools.`

// LLM is the conversational backend capability: take a transcript, optionally
// call tools through the gateway, return the assistant's reply.
type LLM interface {
	GenerateResponse(ctx context.Context, prompt string, tools *Gateway) (string, error)
}

// Mock is a test double that records prompts and returns canned replies.
type Mock struct {
	Reply   string
	Prompts []string
}

func (m *Mock) GenerateResponse(_ context.Context, prompt string, _ *Gateway) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.Reply != "" {
		return m.Reply, nil
	}
	return "I can help you book an appointment.", nil
}
