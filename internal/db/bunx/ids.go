package bunx

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUIDv7 generates a time-ordered UUID (version 7) as a string.
// Used for users, roles, permissions, sessions, auth tokens and audit rows
// so primary keys sort roughly by creation time.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewULID generates a ULID string. Node IDs use ULIDs: they are
// lexicographically sortable and URL/topic safe.
func NewULID() string {
	return ulid.Make().String()
}
