package chat

import (
	"github.com/Busskov/study-clock/pkg/transport"
	"github.com/google/uuid"
)

// Link is the slice of a transport connection a session drives:
// handler registration, lifecycle, and the outbound path.
// *transport.Connection satisfies it.
type Link interface {
	ID() uuid.UUID
	SetOnMessageHandler(handler transport.MessageHandler)
	SetOnCloseHandler(handler transport.OnCloseHandler)
	Run()
	TrySend(message []byte) bool
	Close(err error)
	Done() <-chan struct{}
}

// Publisher fans a payload out to a room. Satisfied by *dispatch.Dispatcher.
type Publisher interface {
	Publish(roomKey string, payload []byte) int
}

// State is a session's lifecycle phase.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
