package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/readingpal/readingpal/internal/config"
	"github.com/readingpal/readingpal/internal/logger"
	"github.com/readingpal/readingpal/internal/remote"
	"github.com/readingpal/readingpal/internal/sync"
)

// ProvideSyncEngine provides the sync engine.
func ProvideSyncEngine(i do.Injector) (*sync.Engine, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	remoteStore := do.MustInvoke[remote.Store](i)
	monitorHandle := do.MustInvoke[*MonitorHandle](i)
	gate := do.MustInvoke[*WriterGate](i)
	log := do.MustInvoke[*logger.Logger](i)

	engine := sync.NewEngine(sync.Config{
		UserID:      cfg.Identity.UserID,
		FullName:    cfg.Identity.FullName,
		Email:       cfg.Identity.Email,
		CallTimeout: cfg.Remote.CallTimeout,
	}, storeHandle.Store, remoteStore, monitorHandle.Monitor, gate.Mutex, log.Logger)

	return engine, nil
}

// SchedulerHandle wraps the scheduler with its context for lifecycle
// management.
type SchedulerHandle struct {
	*sync.Scheduler
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SchedulerHandle) Shutdown() error {
	h.cancel()
	h.Scheduler.Stop()
	return nil
}

// ProvideSyncScheduler provides the running periodic sync scheduler.
func ProvideSyncScheduler(i do.Injector) (*SchedulerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	engine := do.MustInvoke[*sync.Engine](i)
	log := do.MustInvoke[*logger.Logger](i)

	scheduler := sync.NewScheduler(engine, cfg.Sync.Interval, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	scheduler.Start(ctx)

	log.Info("sync scheduler started", "interval", cfg.Sync.Interval)
	return &SchedulerHandle{Scheduler: scheduler, cancel: cancel}, nil
}
