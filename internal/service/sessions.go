package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/webitel/im-messaging-service/internal/domain/model"
	"github.com/webitel/im-messaging-service/internal/domain/registry"
	"github.com/webitel/im-messaging-service/internal/monitoring"
	"github.com/webitel/im-messaging-service/internal/presence"
)

// Sessioner owns the connection lifecycle around the registry: presence
// marks, the offline flush on connect, heartbeats and shutdown.
type Sessioner interface {
	Connect(ctx context.Context, identity model.Identity, sock registry.Socket) (*registry.Conn, error)
	Disconnect(ctx context.Context, conn *registry.Conn)
	Heartbeat(ctx context.Context, userID uuid.UUID)
	Shutdown(ctx context.Context)
}

type SessionManager struct {
	reg      *registry.Registry
	presence presence.Store
	flusher  Flusher
	logger   *slog.Logger
}

func NewSessionManager(reg *registry.Registry, pres presence.Store, flusher Flusher, logger *slog.Logger) *SessionManager {
	return &SessionManager{reg: reg, presence: pres, flusher: flusher, logger: logger}
}

// Connect attaches the session, marks the user online and flushes their
// offline queue. The flush runs before the caller starts reading, so the
// offline batch is the first frame a reconnecting client sees. Presence and
// flush failures are survivable; a full registry slot is not.
func (m *SessionManager) Connect(ctx context.Context, identity model.Identity, sock registry.Socket) (*registry.Conn, error) {
	conn, err := m.reg.Attach(identity, sock)
	if err != nil {
		return nil, err
	}

	if err := m.presence.MarkOnline(ctx, identity.UserID); err != nil {
		m.logger.Warn("MARK_ONLINE_FAILED", "user_id", identity.UserID, "err", err)
	}

	if err := m.flusher.DeliverPending(ctx, conn); err != nil {
		m.logger.Warn("OFFLINE_FLUSH_FAILED", "user_id", identity.UserID, "err", err)
	}

	m.observe()
	m.logger.Info("SESSION_OPENED",
		"user_id", identity.UserID,
		"username", identity.Username,
		"conn_id", conn.ID(),
	)
	return conn, nil
}

// Disconnect detaches the session; the user goes presence-offline only when
// this was their last socket on this node.
func (m *SessionManager) Disconnect(ctx context.Context, conn *registry.Conn) {
	wentOffline := m.reg.Detach(conn)
	if wentOffline {
		if err := m.presence.MarkOffline(ctx, conn.UserID()); err != nil {
			m.logger.Warn("MARK_OFFLINE_FAILED", "user_id", conn.UserID(), "err", err)
		}
	}

	m.observe()
	m.logger.Info("SESSION_CLOSED",
		"user_id", conn.UserID(),
		"conn_id", conn.ID(),
		"went_offline", wentOffline,
		"dropped_frames", conn.Dropped(),
	)
}

// Heartbeat re-arms the caller's online marker.
func (m *SessionManager) Heartbeat(ctx context.Context, userID uuid.UUID) {
	if err := m.presence.Refresh(ctx, userID); err != nil {
		m.logger.Warn("PRESENCE_REFRESH_FAILED", "user_id", userID, "err", err)
	}
}

// Shutdown marks every local user offline and closes their sessions.
func (m *SessionManager) Shutdown(ctx context.Context) {
	for _, userID := range m.reg.Users() {
		if err := m.presence.MarkOffline(ctx, userID); err != nil {
			m.logger.Warn("MARK_OFFLINE_FAILED", "user_id", userID, "err", err)
		}
	}
	m.reg.Shutdown()
	m.observe()
}

func (m *SessionManager) observe() {
	stats := m.reg.Stats()
	monitoring.ActiveConnections.Set(float64(stats.TotalConnections))
	monitoring.ConnectedUsers.Set(float64(stats.ConnectedUsers))
}
