package model

import (
	"time"

	"github.com/google/uuid"
)

// KindText is the default message kind when the client omits message_type.
const KindText = "text"

// Message is a direct message between two users. DeliveredAt and ReadAt are
// set at most once, in that order, and never cleared.
type Message struct {
	ID          uuid.UUID
	SenderID    uuid.UUID
	RecipientID uuid.UUID
	Content     string
	Kind        string
	CreatedAt   time.Time
	DeliveredAt *time.Time
	ReadAt      *time.Time
}

// GroupMessage is a message addressed to every member of a group. Read state
// is tracked per recipient in GroupMessageRead records.
type GroupMessage struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	SenderID  uuid.UUID
	Content   string
	Kind      string
	CreatedAt time.Time
}

// GroupMessageRead marks one group message as read by one member. Created
// once, never mutated.
type GroupMessageRead struct {
	MessageID uuid.UUID
	UserID    uuid.UUID
	ReadAt    time.Time
}
