package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/readingpal/readingpal/internal/config"
	"github.com/readingpal/readingpal/internal/logger"
	"github.com/readingpal/readingpal/internal/netmon"
)

// MonitorHandle wraps the connectivity monitor with its context for
// lifecycle management.
type MonitorHandle struct {
	*netmon.Monitor
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *MonitorHandle) Shutdown() error {
	h.cancel()
	h.Stop()
	return nil
}

// ProvideConnectivityMonitor provides the running connectivity monitor.
func ProvideConnectivityMonitor(i do.Injector) (*MonitorHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	monitor := netmon.New(
		cfg.Network.ProbeAddr,
		cfg.Network.ProbeInterval,
		cfg.Network.ProbeTimeout,
		log.Logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	monitor.Start(ctx)

	return &MonitorHandle{Monitor: monitor, cancel: cancel}, nil
}
