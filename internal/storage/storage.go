// Package storage is the facade over the durable message store. The engine
// writes rows during live exchange; the control plane shares the same tables
// for history and administration.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-messaging-service/internal/domain/model"
)

// ErrNotFound reports a lookup that matched no row. It is a business miss,
// not a store fault: the circuit breaker ignores it.
var ErrNotFound = errors.New("storage: not found")

// Store is everything the core needs from the durable store. Implementations
// must be safe for concurrent use.
type Store interface {
	// SaveMessage inserts a direct message row; DeliveredAt may be pre-set
	// on the live path.
	SaveMessage(ctx context.Context, m model.Message) error
	// Message fetches one direct message or ErrNotFound.
	Message(ctx context.Context, id uuid.UUID) (model.Message, error)
	// MarkDelivered sets delivered_at once; later calls are no-ops.
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkRead sets read_at iff readerID is the recipient and read_at is
	// still null. Reports whether the row was updated.
	MarkRead(ctx context.Context, id, readerID uuid.UUID, at time.Time) (bool, error)
	// SenderOf returns the author of a direct message or ErrNotFound.
	SenderOf(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	// UnreadMessages lists a user's unread direct messages, newest first.
	UnreadMessages(ctx context.Context, userID uuid.UUID) ([]model.Message, error)

	SaveGroupMessage(ctx context.Context, m model.GroupMessage) error
	GroupMessage(ctx context.Context, id uuid.UUID) (model.GroupMessage, error)
	// GroupMembers returns member ids in join order; empty for an unknown
	// group.
	GroupMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
	// MemberRole returns the member's role or ErrNotFound.
	MemberRole(ctx context.Context, groupID, userID uuid.UUID) (model.MemberRole, error)
	// MarkGroupRead records a read receipt for one member, idempotently.
	MarkGroupRead(ctx context.Context, messageID, userID uuid.UUID, at time.Time) error

	// Username resolves a user's display name or ErrNotFound.
	Username(ctx context.Context, userID uuid.UUID) (string, error)

	Ping(ctx context.Context) error
}
