package model

import "github.com/google/uuid"

// Identity is the verified principal behind a connection. It is produced by
// the auth collaborator during the handshake and lives for exactly one
// connection.
type Identity struct {
	UserID   uuid.UUID
	Username string
}
