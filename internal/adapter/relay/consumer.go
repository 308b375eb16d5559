package relay

import (
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/webitel/im-messaging-service/internal/domain/registry"
	"github.com/webitel/im-messaging-service/internal/monitoring"
)

// Consumer writes relayed frames onto this node's local sockets.
type Consumer struct {
	reg    *registry.Registry
	origin string
	logger *slog.Logger
}

func NewConsumer(reg *registry.Registry, origin string, logger *slog.Logger) *Consumer {
	return &Consumer{reg: reg, origin: origin, logger: logger}
}

// Handle processes one relayed envelope. Every exit path except a transient
// delivery problem ACKs: a frame that cannot be decoded or that nobody here
// wants must not circle through the retry policy.
func (c *Consumer) Handle(msg *message.Message) error {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("RELAY_PANIC_RECOVERED",
				"err", r,
				"stack", string(debug.Stack()),
				"msg_id", msg.UUID)
		}
	}()

	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		c.logger.Error("RELAY_DECODE_FAILED", "err", err, "msg_id", msg.UUID)
		return nil // ACK: poison pill protection.
	}

	if env.Origin == c.origin {
		return nil // ACK: our own echo.
	}

	// Locality filter: only the node holding the user's sockets does work.
	if !c.reg.IsLocal(env.UserID) {
		monitoring.RelayFrames.WithLabelValues("dropped").Inc()
		return nil // ACK: handled by another instance, or by the offline queue.
	}

	if c.reg.Broadcast(env.UserID, env.Frame) > 0 {
		monitoring.RelayFrames.WithLabelValues("delivered").Inc()
	}
	return nil
}

// RegisterHandlers binds the consumer to the router with the standard
// middleware chain.
func RegisterHandlers(router *message.Router, sub message.Subscriber, c *Consumer, logger *slog.Logger) {
	router.AddConsumerHandler("RELAY_FRAMES", FramesTopic, sub, c.Handle).AddMiddleware(
		LoggingMiddleware(logger),
		NewRetryMiddleware().Middleware,
		middleware.Timeout(5*time.Second),
	)
}
