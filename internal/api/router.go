package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/techclinic/voice-receptionist/internal/booking"
	"github.com/techclinic/voice-receptionist/internal/chat"
)

type RouterConfig struct {
	Engine     *booking.Engine
	Responder  *chat.Responder
	LiveDialer LiveDialer
	PgPool     *pgxpool.Pool
	Redis      *redis.Client
	HoldTTL    time.Duration
	PublicHost string
	Env        string
	Version    string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Booking endpoints
	r.Get("/slots", listSlotsHandler(cfg.Engine))
	r.Post("/slots/hold", holdSlotHandler(cfg.Engine, int64(cfg.HoldTTL.Seconds())))
	r.Post("/appointments/confirm", confirmAppointmentHandler(cfg.Engine))
	r.Get("/appointments", listAppointmentsHandler(cfg.Engine))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Engine))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Engine))

	// Conversation endpoints
	r.Post("/chat", chatHandler(cfg.Responder))
	r.Post("/chat/reset", chatResetHandler(cfg.Responder))
	r.Post("/webhooks/sms", smsWebhookHandler(cfg.Responder))
	r.Post("/webhooks/voice", voiceWebhookHandler(cfg.PublicHost))
	r.Get("/media-stream", mediaStreamHandler(cfg))

	return r
}
