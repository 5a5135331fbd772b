package services

import (
	"context"
	"fmt"
	"time"

	"registration-gateway/internal/logger"
	"registration-gateway/internal/storage"
)

const sweepBatchSize = 100

// Sweeper periodically rejects pending groups whose reservation window has
// elapsed, releasing whatever inventory they still hold. Gateway groups that
// never completed payment have no reservations; they just become rejected
// and stay queryable.
type Sweeper struct {
	store    storage.Store
	engine   *ConfirmationEngine
	interval time.Duration
	log      *logger.Logger
	now      func() time.Time
}

func NewSweeper(store storage.Store, engine *ConfirmationEngine, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		engine:   engine,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the time source; tests pin it.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run sweeps on a ticker until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.LogProcess("SWEEPER", fmt.Sprintf("Expiry sweep running every %s", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.LogProcess("SWEEPER", "Expiry sweep stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("SWEEPER", "Sweep failed: "+err.Error())
			}
		}
	}
}

// SweepOnce expires one batch of overdue pending groups and reports how many
// it settled.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	groups, err := s.store.ListExpiredPending(ctx, s.now(), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, group := range groups {
		if _, err := s.engine.Expire(ctx, group.GroupID); err != nil {
			s.log.Error("SWEEPER", fmt.Sprintf("Failed to expire group %s: %v", group.GroupID, err))
			continue
		}
		swept++
	}

	if swept > 0 {
		s.log.LogProcess("SWEEPER", fmt.Sprintf("Expired %d overdue groups", swept))
	}
	return swept, nil
}
