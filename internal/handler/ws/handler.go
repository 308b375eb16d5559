// Package ws is the WebSocket transport: handshake authentication, the
// per-connection read loop and the frame router sitting between the socket
// and the delivery engine.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/webitel/im-messaging-service/config"
	"github.com/webitel/im-messaging-service/internal/auth"
	"github.com/webitel/im-messaging-service/internal/domain/registry"
	"github.com/webitel/im-messaging-service/internal/service"
)

type Handler struct {
	logger   *slog.Logger
	verifier *auth.Verifier
	sessions service.Sessioner
	router   *Router
	upgrader websocket.Upgrader

	readLimit   int64
	rateLimit   rate.Limit
	rateBurst   int
	idleTimeout time.Duration
}

func NewHandler(
	logger *slog.Logger,
	verifier *auth.Verifier,
	sessions service.Sessioner,
	router *Router,
	cfg *config.Config,
) *Handler {
	return &Handler{
		logger:   logger,
		verifier: verifier,
		sessions: sessions,
		router:   router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Tokens authenticate the caller; the Origin header does not.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		readLimit: cfg.Router.ReadLimit,
		rateLimit: rate.Limit(cfg.Router.Rate),
		rateBurst: cfg.Router.Burst,
		// Clients heartbeat every OnlineTTL/2; twice the TTL of silence
		// means the peer is gone even by presence standards.
		idleTimeout: 2 * cfg.Presence.OnlineTTL,
	}
}

// ServeHTTP runs one connection end to end: verify identity, upgrade, attach,
// then read frames until the socket dies.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.verifier.Inspect(r)
	if err != nil {
		h.logger.Warn("WS_AUTH_REJECTED", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WS_UPGRADE_FAILED", "err", err, "remote", r.RemoteAddr)
		return
	}

	conn, err := h.sessions.Connect(r.Context(), identity, sock)
	if err != nil {
		if errors.Is(err, registry.ErrTooManyConnections) {
			deadline := time.Now().Add(time.Second)
			_ = sock.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Too many connections"),
				deadline,
			)
		}
		_ = sock.Close()
		return
	}

	h.readLoop(r.Context(), conn, sock)

	// The request context may already be dead; cleanup must still run.
	h.sessions.Disconnect(context.Background(), conn)
}

func (h *Handler) readLoop(ctx context.Context, conn *registry.Conn, sock *websocket.Conn) {
	sock.SetReadLimit(h.readLimit)
	_ = sock.SetReadDeadline(time.Now().Add(h.idleTimeout))

	// Pacing delays the next read instead of erroring, so an enthusiastic
	// client gets slowed down, not disconnected.
	limiter := rate.NewLimiter(h.rateLimit, h.rateBurst)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		_, data, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("WS_READ_ENDED", "conn_id", conn.ID(), "err", err)
			}
			return
		}
		_ = sock.SetReadDeadline(time.Now().Add(h.idleTimeout))

		h.router.Dispatch(ctx, conn, data)
	}
}
