package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/webitel/im-messaging-service/config"
	"github.com/webitel/im-messaging-service/infra/pubsub"
	"github.com/webitel/im-messaging-service/internal/domain/registry"
)

var Module = fx.Module("relay",
	fx.Provide(NewPublisher),
	fx.Invoke(StartConsumer),
)

// NewPublisher returns the broker-backed publisher, or the noop one when no
// broker is configured and frames stay on this node.
func NewPublisher(lc fx.Lifecycle, cfg *config.Config, wmLogger watermill.LoggerAdapter, logger *slog.Logger) (Publisher, error) {
	if cfg.Relay.URL == "" {
		logger.Info("relay disabled, frames stay on this node")
		return NoopPublisher{}, nil
	}

	pub, err := pubsub.NewProvider(cfg.Relay.URL, cfg.NodeID, wmLogger).BuildPublisher()
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return pub.Close() },
	})

	return NewFramePublisher(pub, cfg.NodeID), nil
}

// StartConsumer runs the relay router for this node's queue. A node without a
// broker has nothing to consume.
func StartConsumer(lc fx.Lifecycle, cfg *config.Config, reg *registry.Registry, wmLogger watermill.LoggerAdapter, logger *slog.Logger) error {
	if cfg.Relay.URL == "" {
		return nil
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return fmt.Errorf("relay: build router: %w", err)
	}

	sub, err := pubsub.NewProvider(cfg.Relay.URL, cfg.NodeID, wmLogger).BuildSubscriber()
	if err != nil {
		return err
	}

	RegisterHandlers(router, sub, NewConsumer(reg, cfg.NodeID, logger), logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Error("RELAY_ROUTER_STOPPED", "err", err)
				}
			}()

			select {
			case <-router.Running():
				logger.Info("RELAY_PIPELINE_READY", "topic", FramesTopic, "node", cfg.NodeID)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		OnStop: func(context.Context) error {
			return router.Close()
		},
	})
	return nil
}
