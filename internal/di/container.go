// Package di provides dependency injection configuration for the ReadingPal core.
package di

import (
	"github.com/samber/do/v2"

	"github.com/readingpal/readingpal/internal/config"
	"github.com/readingpal/readingpal/internal/di/providers"
	"github.com/readingpal/readingpal/internal/logger"
	"github.com/readingpal/readingpal/internal/remote"
	"github.com/readingpal/readingpal/internal/service"
	"github.com/readingpal/readingpal/internal/sync"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)

	// Remote and connectivity
	do.Provide(injector, providers.ProvideRemoteStore)
	do.Provide(injector, providers.ProvideConnectivityMonitor)

	// Business services
	do.Provide(injector, providers.ProvideWriterGate)
	do.Provide(injector, providers.ProvideLibraryService)
	do.Provide(injector, providers.ProvideStatsService)

	// Sync
	do.Provide(injector, providers.ProvideSyncEngine)
	do.Provide(injector, providers.ProvideSyncScheduler)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[remote.Store](injector)
	_ = do.MustInvoke[*providers.MonitorHandle](injector)
	_ = do.MustInvoke[*service.LibraryService](injector)
	_ = do.MustInvoke[*service.StatsService](injector)
	_ = do.MustInvoke[*sync.Engine](injector)
	_ = do.MustInvoke[*providers.SchedulerHandle](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
