package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techclinic/voice-receptionist/internal/agent"
	"github.com/techclinic/voice-receptionist/internal/booking"
)

func newTestResponder(t *testing.T) (*Responder, *agent.Mock, *MemHistory) {
	t.Helper()
	engine := booking.NewEngine(booking.NewMemStore(), nil)
	llm := &agent.Mock{Reply: "We have Tuesday at 9am open."}
	history := NewMemHistory()
	return NewResponder(engine, llm, history, 30*time.Second), llm, history
}

func TestRespondRecordsBothSides(t *testing.T) {
	responder, _, history := newTestResponder(t)

	reply, err := responder.Respond(context.Background(), "+15550001111", "Do you have anything Tuesday?")
	require.NoError(t, err)
	assert.Equal(t, "We have Tuesday at 9am open.", reply)

	msgs, err := history.Load(context.Background(), "+15550001111")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, Message{Role: RoleCaller, Text: "Do you have anything Tuesday?"}, msgs[0])
	assert.Equal(t, Message{Role: RoleAssistant, Text: "We have Tuesday at 9am open."}, msgs[1])
}

func TestRespondCarriesTranscriptForward(t *testing.T) {
	responder, llm, _ := newTestResponder(t)

	_, err := responder.Respond(context.Background(), "+15550001111", "Do you have anything Tuesday?")
	require.NoError(t, err)
	_, err = responder.Respond(context.Background(), "+15550001111", "Book the 9am one.")
	require.NoError(t, err)

	require.Len(t, llm.Prompts, 2)
	assert.Contains(t, llm.Prompts[0], "+15550001111")
	assert.NotContains(t, llm.Prompts[0], "Conversation so far")

	assert.Contains(t, llm.Prompts[1], "Conversation so far")
	assert.Contains(t, llm.Prompts[1], "Caller: Do you have anything Tuesday?")
	assert.Contains(t, llm.Prompts[1], "Assistant: We have Tuesday at 9am open.")
	assert.Contains(t, llm.Prompts[1], "Caller: Book the 9am one.")
}

func TestResetForgetsTranscript(t *testing.T) {
	responder, llm, history := newTestResponder(t)

	_, err := responder.Respond(context.Background(), "+15550001111", "Do you have anything Tuesday?")
	require.NoError(t, err)
	require.NoError(t, responder.Reset(context.Background(), "+15550001111"))

	msgs, err := history.Load(context.Background(), "+15550001111")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = responder.Respond(context.Background(), "+15550001111", "Hi again")
	require.NoError(t, err)
	assert.NotContains(t, llm.Prompts[1], "Conversation so far")
}

func TestRespondKeepsConversationsSeparate(t *testing.T) {
	responder, llm, history := newTestResponder(t)

	_, err := responder.Respond(context.Background(), "+15550001111", "Hi")
	require.NoError(t, err)
	_, err = responder.Respond(context.Background(), "+15550002222", "Hello")
	require.NoError(t, err)

	require.Len(t, llm.Prompts, 2)
	assert.NotContains(t, llm.Prompts[1], "Hi")

	msgs, err := history.Load(context.Background(), "+15550002222")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Text)
}
