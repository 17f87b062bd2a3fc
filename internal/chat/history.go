// Package chat carries the text conversation surface: per-phone transcript
// storage and the responder that turns an inbound message into a reply.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is one transcript entry.
type Message struct {
	Role string `json:"role"` // "caller" or "assistant"
	Text string `json:"text"`
}

const (
	RoleCaller    = "caller"
	RoleAssistant = "assistant"
)

// History stores conversation transcripts keyed by phone number. Transcripts
// are append-only and expire as a whole after the configured idle TTL.
type History interface {
	Append(ctx context.Context, phone string, msgs ...Message) error
	Load(ctx context.Context, phone string) ([]Message, error)
	Clear(ctx context.Context, phone string) error
}

// RedisHistory keeps transcripts in Redis lists so every API replica sees the
// same conversation. Each append refreshes the TTL, so a conversation dies
// only after going quiet.
type RedisHistory struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisHistory(client *redis.Client, ttl time.Duration) *RedisHistory {
	return &RedisHistory{client: client, ttl: ttl}
}

func historyKey(phone string) string {
	return "conversation:" + phone
}

func (h *RedisHistory) Append(ctx context.Context, phone string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode transcript entry: %w", err)
		}
		values = append(values, raw)
	}

	key := historyKey(phone)
	pipe := h.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.Expire(ctx, key, h.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append transcript for %s: %w", phone, err)
	}
	return nil
}

func (h *RedisHistory) Load(ctx context.Context, phone string) ([]Message, error) {
	raw, err := h.client.LRange(ctx, historyKey(phone), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load transcript for %s: %w", phone, err)
	}
	msgs := make([]Message, 0, len(raw))
	for _, entry := range raw {
		var m Message
		if err := json.Unmarshal([]byte(entry), &m); err != nil {
			return nil, fmt.Errorf("decode transcript entry: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (h *RedisHistory) Clear(ctx context.Context, phone string) error {
	if err := h.client.Del(ctx, historyKey(phone)).Err(); err != nil {
		return fmt.Errorf("clear transcript for %s: %w", phone, err)
	}
	return nil
}

// MemHistory is an in-process History for tests and local runs without Redis.
type MemHistory struct {
	mu    sync.Mutex
	convs map[string][]Message
}

func NewMemHistory() *MemHistory {
	return &MemHistory{convs: make(map[string][]Message)}
}

func (h *MemHistory) Append(_ context.Context, phone string, msgs ...Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.convs[phone] = append(h.convs[phone], msgs...)
	return nil
}

func (h *MemHistory) Load(_ context.Context, phone string) ([]Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.convs[phone]))
	copy(out, h.convs[phone])
	return out, nil
}

func (h *MemHistory) Clear(_ context.Context, phone string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.convs, phone)
	return nil
}
