package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/techclinic/voice-receptionist/internal/booking"
	"github.com/techclinic/voice-receptionist/internal/config"
	"github.com/techclinic/voice-receptionist/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("expiry-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running expiry worker in env=%s interval=%s", cfg.Env, cfg.SweepInterval)

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

	sweeper := booking.NewSweeper(booking.NewPgStore(pgPool), cfg.SweepInterval)
	sweeper.Run(rootCtx)

	log.Println("expiry-worker stopped")
}
