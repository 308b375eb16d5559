package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/webitel/im-messaging-service/config"
	"github.com/webitel/im-messaging-service/internal/domain/registry"
	"github.com/webitel/im-messaging-service/internal/domain/wire"
	"github.com/webitel/im-messaging-service/internal/monitoring"
	"github.com/webitel/im-messaging-service/internal/service"
)

// Router turns raw frames from one socket into engine calls. It runs on the
// connection's read goroutine, so one frame is handled to completion before
// the next is read.
type Router struct {
	messenger service.Messenger
	sessions  service.Sessioner
	logger    *slog.Logger

	sendTimeout time.Duration
}

func NewRouter(
	messenger service.Messenger,
	sessions service.Sessioner,
	logger *slog.Logger,
	cfg *config.Config,
) *Router {
	return &Router{
		messenger:   messenger,
		sessions:    sessions,
		logger:      logger,
		sendTimeout: cfg.Hub.SendTimeout,
	}
}

// Dispatch handles one client frame. Rejections come back as error frames;
// the connection stays open for everything short of a transport failure.
func (rt *Router) Dispatch(ctx context.Context, conn *registry.Conn, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error("HANDLER_PANIC_RECOVERED",
				"conn_id", conn.ID(),
				"err", r,
				"stack", string(debug.Stack()),
			)
			rt.sendError(conn, wire.CodeInternalError, "Internal server error")
		}
	}()

	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		monitoring.FramesIn.WithLabelValues("invalid").Inc()
		rt.sendError(conn, wire.CodeInvalidJSON, "Invalid JSON payload")
		return
	}
	monitoring.FramesIn.WithLabelValues(env.Type).Inc()

	var err error
	switch env.Type {
	case wire.TypeMessageSend:
		err = rt.messenger.DirectSend(ctx, conn, env)
	case wire.TypeGroupMessageSend:
		err = rt.messenger.GroupSend(ctx, conn, env)
	case wire.TypeMessageRead:
		err = rt.messenger.MarkRead(ctx, conn, env)
	case wire.TypeTyping:
		err = rt.messenger.Typing(ctx, conn, env)
	case wire.TypePing:
		rt.sessions.Heartbeat(ctx, conn.UserID())
		if conn.Send(wire.MustEncode(wire.NewPong()), rt.sendTimeout) {
			monitoring.FramesOut.WithLabelValues(wire.TypePong).Inc()
		}
		return
	default:
		rt.sendError(conn, wire.CodeUnknownType, "Unknown message type: "+env.Type)
		return
	}

	if err != nil {
		var fault *service.Fault
		if errors.As(err, &fault) {
			rt.sendError(conn, fault.Code, fault.Message)
			return
		}
		rt.logger.Error("FRAME_HANDLER_FAILED", "conn_id", conn.ID(), "type", env.Type, "err", err)
		rt.sendError(conn, wire.CodeInternalError, "Internal server error")
	}
}

func (rt *Router) sendError(conn *registry.Conn, code, message string) {
	monitoring.ErrorFrames.WithLabelValues(code).Inc()
	conn.Send(wire.MustEncode(wire.NewError(code, message)), rt.sendTimeout)
}
