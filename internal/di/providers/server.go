package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/readingpal/readingpal/internal/api"
	"github.com/readingpal/readingpal/internal/config"
	"github.com/readingpal/readingpal/internal/logger"
	"github.com/readingpal/readingpal/internal/service"
	"github.com/readingpal/readingpal/internal/sync"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the control API server, already listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	library := do.MustInvoke[*service.LibraryService](i)
	stats := do.MustInvoke[*service.StatsService](i)
	engine := do.MustInvoke[*sync.Engine](i)
	schedulerHandle := do.MustInvoke[*SchedulerHandle](i)

	apiServer := api.NewServer(library, stats, schedulerHandle.Scheduler, engine, log.Logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: apiServer,
	}

	go func() {
		log.Info("control API listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("control API server failed", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
