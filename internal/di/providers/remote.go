package providers

import (
	"github.com/samber/do/v2"

	"github.com/readingpal/readingpal/internal/config"
	"github.com/readingpal/readingpal/internal/logger"
	"github.com/readingpal/readingpal/internal/remote"
)

// ProvideRemoteStore provides the HTTP document-store client.
func ProvideRemoteStore(i do.Injector) (remote.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client := remote.NewClient(
		cfg.Remote.BaseURL,
		cfg.Remote.Token,
		cfg.Remote.RequestsPerSecond,
		log.Logger,
	)

	log.Info("remote store configured", "base_url", cfg.Remote.BaseURL)
	return client, nil
}
