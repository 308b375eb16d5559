package model

import "github.com/google/uuid"

type PointerKind string

const (
	PointerDirect PointerKind = "direct"
	PointerGroup  PointerKind = "group"
)

// QueuedPointer is one entry of a user's offline queue. The queue stores
// references only; the message body stays authoritative in the message store
// and is dereferenced on drain.
type QueuedPointer struct {
	MessageID uuid.UUID   `json:"message_id"`
	Kind      PointerKind `json:"kind"`
	GroupID   *uuid.UUID  `json:"group_id,omitempty"`
}
