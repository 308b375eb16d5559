// Package storagedi wires the message store facade: PostgreSQL when a DSN is
// configured, in-memory otherwise, both behind the circuit breaker.
package storagedi

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/im-messaging-service/config"
	infrapostgres "github.com/webitel/im-messaging-service/infra/postgres"
	"github.com/webitel/im-messaging-service/internal/storage"
	"github.com/webitel/im-messaging-service/internal/storage/memstore"
	"github.com/webitel/im-messaging-service/internal/storage/postgres"
)

var Module = fx.Module("storage",
	fx.Provide(NewStore),
)

func NewStore(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Postgres.DSN == "" {
		logger.Warn("message store running in-memory, history will not survive a restart")
		return storage.NewBreakerStore(memstore.NewStore()), nil
	}

	pool, err := infrapostgres.New(lc, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	return storage.NewBreakerStore(postgres.NewStore(pool)), nil
}
