package providers

import (
	"sync"

	"github.com/samber/do/v2"

	"github.com/readingpal/readingpal/internal/logger"
	"github.com/readingpal/readingpal/internal/service"
)

// WriterGate is the single-writer mutex shared by the library service
// and the sync engine. All local mutations serialize on it, so a user
// mutation never interleaves with a pass applying remote state.
type WriterGate struct {
	*sync.Mutex
}

// ProvideWriterGate provides the shared writer gate.
func ProvideWriterGate(i do.Injector) (*WriterGate, error) {
	return &WriterGate{Mutex: &sync.Mutex{}}, nil
}

// ProvideLibraryService provides the library service.
func ProvideLibraryService(i do.Injector) (*service.LibraryService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	gate := do.MustInvoke[*WriterGate](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewLibraryService(storeHandle.Store, gate.Mutex, log.Logger), nil
}

// ProvideStatsService provides the stats service.
func ProvideStatsService(i do.Injector) (*service.StatsService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	return service.NewStatsService(storeHandle.Store), nil
}
