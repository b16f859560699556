package sync

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"time"
)

// DefaultInterval is how often a scheduled pass runs when the
// configuration does not say otherwise.
const DefaultInterval = 7 * 24 * time.Hour

// Scheduler runs a sync pass on a fixed interval. A manual SyncNow and
// a scheduled tick are the same operation and share the engine's pass
// lock, so overlapping triggers collapse into no-ops.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger

	stopOnce stdsync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates a scheduler around the engine. interval <= 0
// falls back to DefaultInterval.
func NewScheduler(engine *Engine, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the periodic loop. The first scheduled pass fires one
// interval after Start; startup syncs are triggered explicitly.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.run(ctx)
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// SyncNow runs a pass immediately.
func (s *Scheduler) SyncNow(ctx context.Context) (*PassReport, error) {
	return s.engine.Sync(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	_, err := s.engine.Sync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrOffline), errors.Is(err, ErrSyncInProgress):
		s.logger.Debug("scheduled sync skipped", "reason", err)
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Error("scheduled sync failed", "error", err)
	}
}
