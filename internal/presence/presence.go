// Package presence tracks who is reachable right now and holds the offline
// queues. Online markers are TTL keys refreshed by client pings; absence of
// a marker is treated as offline. Queues store message pointers, never
// bodies.
package presence

import (
	"context"

	"github.com/google/uuid"
	"github.com/webitel/im-messaging-service/internal/domain/model"
)

// Store is the presence surface consumed by the delivery engine and the
// session manager. Implementations must be safe for concurrent use.
type Store interface {
	// MarkOnline sets the user's online marker with the online TTL.
	MarkOnline(ctx context.Context, userID uuid.UUID) error
	// MarkOffline removes the online marker.
	MarkOffline(ctx context.Context, userID uuid.UUID) error
	IsOnline(ctx context.Context, userID uuid.UUID) (bool, error)
	// Refresh re-arms the online TTL on a heartbeat. Re-creates the marker
	// when it already expired, since a heartbeat proves liveness.
	Refresh(ctx context.Context, userID uuid.UUID) error
	// Partition splits userIDs into online and offline, preserving the
	// input order within each part.
	Partition(ctx context.Context, userIDs []uuid.UUID) (online, offline []uuid.UUID, err error)

	// Enqueue pushes a pointer onto the user's offline queue and re-arms
	// the queue TTL.
	Enqueue(ctx context.Context, userID uuid.UUID, ptr model.QueuedPointer) error
	// Drain returns the queued pointers, oldest first. The queue is left in
	// place; callers Clear it once delivery succeeded.
	Drain(ctx context.Context, userID uuid.UUID) ([]model.QueuedPointer, error)
	Clear(ctx context.Context, userID uuid.UUID) error

	Ping(ctx context.Context) error
}

const (
	onlinePrefix = "online:"
	queuePrefix  = "offline_queue:"
)

func onlineKey(userID uuid.UUID) string { return onlinePrefix + userID.String() }
func queueKey(userID uuid.UUID) string  { return queuePrefix + userID.String() }
