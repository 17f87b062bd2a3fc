package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/techclinic/voice-receptionist/internal/agent"
	"github.com/techclinic/voice-receptionist/internal/booking"
)

// Responder answers inbound text messages. Each message gets the caller's
// prior transcript prepended so the assistant keeps context across texts, and
// a fresh tool gateway bound to the caller's phone number.
type Responder struct {
	engine  *booking.Engine
	llm     agent.LLM
	history History
	holdTTL time.Duration
}

func NewResponder(engine *booking.Engine, llm agent.LLM, history History, holdTTL time.Duration) *Responder {
	return &Responder{
		engine:  engine,
		llm:     llm,
		history: history,
		holdTTL: holdTTL,
	}
}

// Respond produces the assistant's reply to one inbound message and records
// both sides in the transcript.
func (r *Responder) Respond(ctx context.Context, phone, text string) (string, error) {
	past, err := r.history.Load(ctx, phone)
	if err != nil {
		return "", err
	}

	prompt := buildPrompt(past, phone, text)
	gateway := agent.NewGateway(r.engine, phone, r.holdTTL)

	reply, err := r.llm.GenerateResponse(ctx, prompt, gateway)
	if err != nil {
		return "", fmt.Errorf("generate reply for %s: %w", phone, err)
	}

	if err := r.history.Append(ctx, phone,
		Message{Role: RoleCaller, Text: text},
		Message{Role: RoleAssistant, Text: reply},
	); err != nil {
		return "", err
	}
	return reply, nil
}

// Reset forgets the caller's transcript so the next message starts fresh.
func (r *Responder) Reset(ctx context.Context, phone string) error {
	return r.history.Clear(ctx, phone)
}

func buildPrompt(past []Message, phone, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The caller's phone number is %s.\n", phone)
	if len(past) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range past {
			label := "Caller"
			if m.Role == RoleAssistant {
				label = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", label, m.Text)
		}
	}
	fmt.Fprintf(&b, "Caller: %s", text)
	return b.String()
}
