package registry

import (
	"context"

	"go.uber.org/fx"

	"github.com/webitel/im-messaging-service/config"
)

var Module = fx.Module("registry",
	fx.Provide(
		func(cfg *config.Config) *Registry {
			return New(
				WithMaxPerUser(cfg.Hub.MaxConnectionsPerUser),
				WithMailboxSize(cfg.Hub.MailboxSize),
				WithSendTimeout(cfg.Hub.SendTimeout),
				WithWriteWait(cfg.Hub.WriteTimeout),
			)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, r *Registry) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				r.Shutdown()
				return nil
			},
		})
	}),
)
