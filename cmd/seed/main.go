package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/techclinic/voice-receptionist/internal/booking"
	"github.com/techclinic/voice-receptionist/internal/db"
)

// startTimes is the clinic's daily schedule: three morning and three
// afternoon openings.
var startTimes = []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00"}

const businessDays = 5

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, dsn); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("schema up to date")

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := seedSlots(ctx, pool); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

// seedSlots opens the schedule for the next five business days. Existing rows
// are left untouched so re-seeding never clobbers live holds or bookings.
func seedSlots(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	day := time.Now()
	inserted := 0
	for d := 0; d < businessDays; {
		day = day.AddDate(0, 0, 1)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		d++

		date := day.Format("2006-01-02")
		for _, start := range startTimes {
			tag, err := tx.Exec(ctx, `
				INSERT INTO slots (slot_id, date, start_time)
				VALUES ($1, $2, $3)
				ON CONFLICT (slot_id) DO NOTHING
			`, booking.SlotID(date, start), date, start)
			if err != nil {
				return err
			}
			inserted += int(tag.RowsAffected())
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("slots seeded: %d new over %d business days", inserted, businessDays)
	return nil
}
