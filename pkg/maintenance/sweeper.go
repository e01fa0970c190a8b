// Package maintenance runs the periodic mapping eviction sweep. The sweep is
// independent of the relay path: a failed sweep is logged and retried on the
// next scheduled tick.
package maintenance

import (
	"context"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/relayx/pkg/logger"
	"github.com/tinyland-inc/relayx/pkg/mapping"
)

// Sweeper evicts mapping records older than the retention window on a cron
// schedule.
type Sweeper struct {
	store     *mapping.Store
	schedule  string
	retention time.Duration
	lastRun   time.Time
	now       func() time.Time
}

func NewSweeper(store *mapping.Store, schedule string, retention time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		schedule:  schedule,
		retention: retention,
		now:       time.Now,
	}
}

// Start runs the schedule loop until the context is canceled. The schedule
// is checked once per minute.
func (s *Sweeper) Start(ctx context.Context) {
	logger.InfoCF("maintenance", "Sweeper started", map[string]any{
		"schedule":  s.schedule,
		"retention": s.retention.String(),
	})

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Sweeper) tick() {
	now := s.now().Truncate(time.Minute)
	if now.Equal(s.lastRun) {
		return
	}

	due, err := gronx.New().IsDue(s.schedule, now)
	if err != nil {
		logger.ErrorCF("maintenance", "Bad sweep schedule", map[string]any{
			"schedule": s.schedule,
			"error":    err.Error(),
		})
		return
	}
	if !due {
		return
	}

	s.lastRun = now
	s.Sweep()
}

// Sweep evicts expired records once. Failures are logged; the next tick
// self-heals.
func (s *Sweeper) Sweep() {
	evicted, err := s.store.EvictOlderThan(s.retention)
	if err != nil {
		logger.ErrorCF("maintenance", "Sweep failed", map[string]any{"error": err.Error()})
		return
	}
	if evicted > 0 {
		logger.InfoCF("maintenance", "Evicted expired mappings", map[string]any{"count": evicted})
	}
}
