package service

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		fx.Annotate(
			NewUsernameResolver,
			fx.As(new(Resolver)),
		),
		fx.Annotate(
			NewEngine,
			fx.As(new(Messenger)),
		),
		fx.Annotate(
			NewOfflineFlusher,
			fx.As(new(Flusher)),
		),
		fx.Annotate(
			NewSessionManager,
			fx.As(new(Sessioner)),
		),
	),

	fx.Decorate(func(orig Resolver, logger *slog.Logger) Resolver {
		return &resolverMiddleware{
			next:   orig,
			logger: logger,
		}
	}),

	fx.Invoke(func(lc fx.Lifecycle, sessions Sessioner) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				sessions.Shutdown(ctx)
				return nil
			},
		})
	}),
)
