package registry

import (
	"time"

	"github.com/google/uuid"
)

// Transport is the outbound surface the registry needs from a live
// connection. *transport.Connection satisfies it.
type Transport interface {
	TrySend(message []byte) bool
	Close(err error)
}

// Member is one live session inside a room.
type Member struct {
	ID        uuid.UUID
	UserID    int64
	Username  string
	Transport Transport
	JoinedAt  time.Time
}

// Room is a named group of live sessions that receive the same published payloads.
type Room struct {
	Key     string
	Members map[uuid.UUID]*Member
}
