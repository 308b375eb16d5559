package presence

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/im-messaging-service/config"
	infraredis "github.com/webitel/im-messaging-service/infra/redis"
)

var Module = fx.Module("presence",
	fx.Provide(NewStore),
)

// NewStore selects the Redis-backed store when an address is configured and
// falls back to the in-memory one for single-node runs without Redis.
func NewStore(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) Store {
	if cfg.Redis.Addr == "" {
		logger.Warn("presence store running in-memory, queues will not survive a restart")
		return NewMemoryStore(cfg.Presence.OnlineTTL, cfg.Presence.QueueTTL)
	}

	client := infraredis.New(lc, cfg.Redis, logger)
	return NewRedisStore(client, cfg.Presence.OnlineTTL, cfg.Presence.QueueTTL)
}
