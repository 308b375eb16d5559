/*
Package registry tracks every live WebSocket session in this process and fans
frames out to them.

Two maps share one mutex: byUser groups sessions per user for delivery, byConn
resolves a session back to its owner for teardown. The lock guards map edits
only. Delivery snapshots the target sessions under the read lock, releases it,
and then writes, so a stalled socket can never block registration or other
users' traffic. Per-socket ordering comes from each Conn's single pump
goroutine, not from the registry lock.
*/
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webitel/im-messaging-service/internal/domain/model"
)

// ErrTooManyConnections is returned by Attach when the user already holds the
// maximum number of simultaneous sessions.
var ErrTooManyConnections = errors.New("registry: connection limit reached for user")

type Registry struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]map[uuid.UUID]*Conn
	byConn map[uuid.UUID]uuid.UUID

	config struct {
		maxPerUser  int
		mailboxSize int
		sendTimeout time.Duration
		writeWait   time.Duration
	}

	startedAt time.Time
}

func New(opts ...Option) *Registry {
	r := &Registry{
		byUser:    make(map[uuid.UUID]map[uuid.UUID]*Conn),
		byConn:    make(map[uuid.UUID]uuid.UUID),
		startedAt: time.Now(),
	}
	r.config.maxPerUser = 5
	r.config.mailboxSize = 256
	r.config.sendTimeout = 500 * time.Millisecond
	r.config.writeWait = 10 * time.Second

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach registers a new session for identity and starts its write pump.
// The cap check and the map inserts happen under one critical section, so two
// racing connections cannot both squeeze past the limit.
func (r *Registry) Attach(identity model.Identity, sock Socket) (*Conn, error) {
	conn := newConn(identity, sock, r.config.mailboxSize, r.config.writeWait)

	r.mu.Lock()
	set := r.byUser[identity.UserID]
	if len(set) >= r.config.maxPerUser {
		r.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	if set == nil {
		set = make(map[uuid.UUID]*Conn)
		r.byUser[identity.UserID] = set
	}
	set[conn.id] = conn
	r.byConn[conn.id] = identity.UserID
	r.mu.Unlock()

	go conn.pump()
	return conn, nil
}

// Detach removes the session from both maps and closes it. It reports whether
// this was the user's last session in this process. Detaching a session the
// registry no longer knows (already shut down) is a no-op.
func (r *Registry) Detach(conn *Conn) (wentOffline bool) {
	r.mu.Lock()
	userID, ok := r.byConn[conn.id]
	if ok {
		delete(r.byConn, conn.id)
		set := r.byUser[userID]
		delete(set, conn.id)
		if len(set) == 0 {
			delete(r.byUser, userID)
			wentOffline = true
		}
	}
	r.mu.Unlock()

	conn.Close()
	return wentOffline
}

// SocketsFor returns a point-in-time snapshot of the user's sessions. The
// caller writes to them after the lock is long gone.
func (r *Registry) SocketsFor(userID uuid.UUID) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	conns := make([]*Conn, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

// IsLocal reports whether the user has at least one session in this process.
func (r *Registry) IsLocal(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Broadcast sends the frame to every current session of the user and returns
// how many mailboxes accepted it.
func (r *Registry) Broadcast(userID uuid.UUID, frame []byte) int {
	accepted := 0
	for _, conn := range r.SocketsFor(userID) {
		if conn.Send(frame, r.config.sendTimeout) {
			accepted++
		}
	}
	return accepted
}

// UserOf resolves a session id back to its owner.
func (r *Registry) UserOf(connID uuid.UUID) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[connID]
	return userID, ok
}

// Users returns the ids of every user with at least one live session here.
func (r *Registry) Users() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]uuid.UUID, 0, len(r.byUser))
	for id := range r.byUser {
		users = append(users, id)
	}
	return users
}

func (r *Registry) Stats() model.HubStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return model.HubStats{
		ConnectedUsers:   len(r.byUser),
		TotalConnections: len(r.byConn),
		Uptime:           time.Since(r.startedAt),
	}
}

// Shutdown closes every session and empties both maps. Read loops observe the
// socket close and unwind through their own Detach, which by then is a no-op.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.byConn))
	for _, set := range r.byUser {
		for _, c := range set {
			conns = append(conns, c)
		}
	}
	r.byUser = make(map[uuid.UUID]map[uuid.UUID]*Conn)
	r.byConn = make(map[uuid.UUID]uuid.UUID)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
