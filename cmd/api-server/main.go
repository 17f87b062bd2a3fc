package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/techclinic/voice-receptionist/internal/agent"
	"github.com/techclinic/voice-receptionist/internal/api"
	"github.com/techclinic/voice-receptionist/internal/booking"
	"github.com/techclinic/voice-receptionist/internal/chat"
	"github.com/techclinic/voice-receptionist/internal/config"
	"github.com/techclinic/voice-receptionist/internal/db"
	"github.com/techclinic/voice-receptionist/internal/notify"
	redisclient "github.com/techclinic/voice-receptionist/internal/redis"
	"github.com/techclinic/voice-receptionist/internal/relay"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	var notifier booking.Notifier
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		notifier = notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
	} else {
		log.Println("twilio credentials absent, sms notifications are logged only")
		notifier = notify.LogSender{}
	}

	store := booking.NewPgStore(pgPool)
	engine := booking.NewEngine(store, notifier)

	var llm agent.LLM
	if cfg.GeminiAPIKey != "" {
		llm, err = agent.NewGemini(rootCtx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatalf("gemini client error: %v", err)
		}
	} else {
		log.Println("GEMINI_API_KEY absent, chat replies are canned")
		llm = &agent.Mock{}
	}

	responder := chat.NewResponder(engine, llm,
		chat.NewRedisHistory(rdb, cfg.ConversationTTL), cfg.HoldTTL)

	liveDialer := func(ctx context.Context, systemInstruction string) (relay.AgentSession, error) {
		return agent.ConnectLive(ctx, agent.LiveConfig{
			APIKey:            cfg.GeminiAPIKey,
			Model:             cfg.LiveModel,
			SystemInstruction: systemInstruction,
			Tools:             agent.ToolSpecs(),
		})
	}

	// The hold-expiry sweeper runs in-process; the standalone expiry-worker
	// binary covers deployments that scale the API separately.
	sweeper := booking.NewSweeper(store, cfg.SweepInterval)
	go sweeper.Run(rootCtx)

	router := api.NewRouter(api.RouterConfig{
		Engine:     engine,
		Responder:  responder,
		LiveDialer: liveDialer,
		PgPool:     pgPool,
		Redis:      rdb,
		HoldTTL:    cfg.HoldTTL,
		PublicHost: cfg.PublicHost,
		Env:        cfg.Env,
		Version:    version,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}
