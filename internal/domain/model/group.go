package model

import (
	"time"

	"github.com/google/uuid"
)

type MemberRole string

const (
	RoleCreator MemberRole = "creator"
	RoleAdmin   MemberRole = "admin"
	RoleMember  MemberRole = "member"
)

type Group struct {
	ID        uuid.UUID
	Name      string
	CreatorID uuid.UUID
	CreatedAt time.Time
}

// GroupMember is keyed by (GroupID, UserID); a user holds at most one
// membership per group.
type GroupMember struct {
	GroupID  uuid.UUID
	UserID   uuid.UUID
	Role     MemberRole
	JoinedAt time.Time
}
