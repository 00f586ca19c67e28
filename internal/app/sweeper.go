package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/core"
)

const DefaultSweepInterval = 30 * time.Second

// LockSweeper periodically expires stale editing locks.
type LockSweeper struct {
	Hub      *core.Hub
	Interval time.Duration
	Now      func() time.Time
}

func (s *LockSweeper) String() string { return "lock-sweeper" }

func (s *LockSweeper) Serve(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Str("module", "app.sweeper").Dur("interval", interval).Msg("lock sweeper started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Hub.ExpireLocks(now()); n > 0 {
				log.Info().Str("module", "app.sweeper").Int("expired", n).Msg("sweep done")
			}
		}
	}
}
