package booking

import (
	"context"
	"errors"
	"log"
	"time"
)

// Sweeper returns stale holds to AVAILABLE on a fixed interval. Each reset is
// guarded by the same conditional-write primitive the engine uses, so a hold
// that was refreshed or confirmed between scan and write is left alone; losing
// that race is expected and skipped silently. The sweeper never takes a lock
// and never blocks booking operations.
type Sweeper struct {
	store    Store
	interval time.Duration
	now      func() int64
}

func NewSweeper(store Store, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		now:      func() int64 { return time.Now().Unix() },
	}
}

func (s *Sweeper) WithClock(now func() int64) *Sweeper {
	s.now = now
	return s
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("expiry sweeper stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if n, err := s.SweepOnce(runCtx); err != nil {
		log.Printf("expiry sweep error: %v", err)
	} else if n > 0 {
		log.Printf("expiry sweep released %d stale holds", n)
	}
}

// SweepOnce scans for HELD slots whose hold has expired and conditionally
// resets each to AVAILABLE. Returns how many slots were released. Per-slot
// errors are logged and do not stop the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	stale, err := s.store.ListExpiredHolds(ctx, now)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, slot := range stale {
		_, err := s.store.UpdateSlot(ctx, slot.SlotID,
			SlotCondition{Status: SlotHeld, ExpiresAtOrBefore: now},
			SlotUpdate{Status: SlotAvailable})
		if err != nil {
			if errors.Is(err, ErrConditionFailed) {
				// Another operation resolved the slot between scan and write.
				continue
			}
			log.Printf("failed to release expired hold on %s: %v", slot.SlotID, err)
			continue
		}
		released++
		log.Printf("expired slot %s back to AVAILABLE", slot.SlotID)
	}
	return released, nil
}
