package cmd

import (
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/fx"

	"github.com/webitel/im-messaging-service/config"
	"github.com/webitel/im-messaging-service/internal/adapter/relay"
	"github.com/webitel/im-messaging-service/internal/auth"
	"github.com/webitel/im-messaging-service/internal/domain/registry"
	"github.com/webitel/im-messaging-service/internal/handler/httpapi"
	"github.com/webitel/im-messaging-service/internal/handler/ws"
	"github.com/webitel/im-messaging-service/internal/presence"
	"github.com/webitel/im-messaging-service/internal/service"
	storagedi "github.com/webitel/im-messaging-service/internal/storage/di"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
		),
		auth.Module,
		registry.Module,
		presence.Module,
		storagedi.Module,
		service.Module,
		relay.Module,
		ws.Module,
		httpapi.Module,
	)
}

// ProvideLogger builds the process-wide slog logger. The level lives in a
// LevelVar so a config-file change can flip it without a restart.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(
		slog.String("service", ServiceName),
		slog.String("node", cfg.NodeID),
	)
	slog.SetDefault(logger)

	cfg.Watch(func(raw string) {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			logger.Warn("LOG_LEVEL_REJECTED", "level", raw, "err", err)
			return
		}
		logger.Info("LOG_LEVEL_CHANGED", "level", raw)
	})

	return logger
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}
