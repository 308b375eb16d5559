// Package redis owns the shared Redis client used by the presence store.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/webitel/im-messaging-service/config"
)

// New builds the client and ties it to the application lifecycle. Start fails
// fast when the server is unreachable instead of limping along.
func New(lc fx.Lifecycle, cfg config.Redis, logger *slog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
			}
			logger.Info("REDIS_CONNECTED", "addr", cfg.Addr, "db", cfg.DB)
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return client
}
