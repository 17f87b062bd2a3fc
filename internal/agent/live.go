package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	liveEndpoint       = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"
	liveConnectTimeout = 15 * time.Second
)

// ErrSessionClosed is returned by Receive once the agent channel has ended.
var ErrSessionClosed = errors.New("live session closed")

// LiveConfig configures a bidirectional audio session with the agent.
type LiveConfig struct {
	APIKey            string
	Model             string
	SystemInstruction string
	Tools             []ToolSpec
}

// ToolCall is a tool invocation requested by the agent mid-conversation.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResponse is the result sent back for one ToolCall.
type ToolResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// ServerEvent is one decoded push from the agent channel. Exactly one
// concern is populated per event: audio to play, an interruption (barge-in),
// a turn boundary, or tool calls to dispatch.
type ServerEvent struct {
	Audio        []byte // 24 kHz PCM
	Interrupted  bool
	TurnComplete bool
	ToolCalls    []ToolCall
}

// LiveSession is the websocket connection to the conversational agent. Reads
// happen from the relay's receive task; writes are serialized by a mutex since
// audio frames and tool responses come from different tasks.
type LiveSession struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// ConnectLive dials the agent channel and completes the setup handshake.
func ConnectLive(ctx context.Context, cfg LiveConfig) (*LiveSession, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("live session requires an api key")
	}

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, liveConnectTimeout)
		defer cancel()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, liveEndpoint+"?key="+cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("dial live endpoint: %w", err)
	}

	setup := map[string]any{
		"setup": map[string]any{
			"model": cfg.Model,
			"generationConfig": map[string]any{
				"responseModalities": []string{"AUDIO"},
			},
			"systemInstruction": map[string]any{
				"parts": []map[string]any{{"text": cfg.SystemInstruction}},
			},
			"tools": []map[string]any{
				{"functionDeclarations": liveDeclarations(cfg.Tools)},
			},
		},
	}
	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send live setup: %w", err)
	}

	// First frame back must acknowledge setup.
	_ = conn.SetReadDeadline(time.Now().Add(liveConnectTimeout))
	var ack struct {
		SetupComplete *struct{} `json:"setupComplete"`
	}
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read setup ack: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if ack.SetupComplete == nil {
		_ = conn.Close()
		return nil, errors.New("live setup was not acknowledged")
	}

	return &LiveSession{conn: conn}, nil
}

func liveDeclarations(specs []ToolSpec) []map[string]any {
	decls := make([]map[string]any, 0, len(specs))
	for _, spec := range specs {
		props := make(map[string]any, len(spec.Params))
		for name, p := range spec.Params {
			typ := "STRING"
			if p.Type == "integer" {
				typ = "INTEGER"
			}
			props[name] = map[string]any{"type": typ, "description": p.Description}
		}
		decl := map[string]any{
			"name":        spec.Name,
			"description": spec.Description,
			"parameters": map[string]any{
				"type":       "OBJECT",
				"properties": props,
			},
		}
		if len(spec.Required) > 0 {
			decl["parameters"].(map[string]any)["required"] = spec.Required
		}
		decls = append(decls, decl)
	}
	return decls
}

// SendAudio forwards one chunk of 16 kHz PCM caller audio to the agent.
func (s *LiveSession) SendAudio(pcm []byte) error {
	msg := map[string]any{
		"realtimeInput": map[string]any{
			"mediaChunks": []map[string]any{{
				"mimeType": "audio/pcm;rate=16000",
				"data":     base64.StdEncoding.EncodeToString(pcm),
			}},
		},
	}
	return s.writeJSON(msg)
}

// SendToolResponses returns tool results on the same channel the calls
// arrived on.
func (s *LiveSession) SendToolResponses(results []ToolResponse) error {
	responses := make([]map[string]any, 0, len(results))
	for _, r := range results {
		responses = append(responses, map[string]any{
			"id":       r.ID,
			"name":     r.Name,
			"response": r.Response,
		})
	}
	msg := map[string]any{
		"toolResponse": map[string]any{
			"functionResponses": responses,
		},
	}
	return s.writeJSON(msg)
}

func (s *LiveSession) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

type liveServerMessage struct {
	ServerContent *struct {
		ModelTurn *struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"modelTurn"`
		Interrupted  bool `json:"interrupted"`
		TurnComplete bool `json:"turnComplete"`
	} `json:"serverContent"`
	ToolCall *struct {
		FunctionCalls []struct {
			ID   string         `json:"id"`
			Name string         `json:"name"`
			Args map[string]any `json:"args"`
		} `json:"functionCalls"`
	} `json:"toolCall"`
}

// Receive blocks for the next event from the agent. The channel frames one
// agent turn per serverContent sequence; callers re-enter Receive after every
// turn completion for the lifetime of the call. A normal close returns
// ErrSessionClosed.
func (s *LiveSession) Receive() (*ServerEvent, error) {
	for {
		var msg liveServerMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrSessionClosed
			}
			return nil, err
		}

		switch {
		case msg.ToolCall != nil:
			ev := &ServerEvent{}
			for _, call := range msg.ToolCall.FunctionCalls {
				ev.ToolCalls = append(ev.ToolCalls, ToolCall{
					ID:   call.ID,
					Name: call.Name,
					Args: call.Args,
				})
			}
			return ev, nil
		case msg.ServerContent != nil:
			sc := msg.ServerContent
			ev := &ServerEvent{
				Interrupted:  sc.Interrupted,
				TurnComplete: sc.TurnComplete,
			}
			if sc.ModelTurn != nil {
				for _, part := range sc.ModelTurn.Parts {
					if part.InlineData == nil {
						continue
					}
					audio, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
					if err != nil {
						return nil, fmt.Errorf("decode agent audio: %w", err)
					}
					ev.Audio = append(ev.Audio, audio...)
				}
			}
			return ev, nil
		default:
			// Keep-alive or unknown frame; keep reading.
		}
	}
}

// Close ends the agent channel. Safe to call from any task and more than once.
func (s *LiveSession) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	return nil
}
