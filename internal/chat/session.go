// Package chat implements the session layer of the private messaging
// core: one session per live connection, driving frame handling, room
// membership, and the persist-then-fan-out pipeline.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Busskov/study-clock/internal/identity"
	"github.com/Busskov/study-clock/internal/store"
	"github.com/Busskov/study-clock/pkg/registry"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// PairSession is one authenticated connection inside a private two-party
// conversation. Every non-empty inbound frame is persisted and then fanned
// out to both participants, the sender included.
type PairSession struct {
	logger    *slog.Logger
	reg       registry.Registry
	store     store.Store
	publisher Publisher
	link      Link

	user    identity.User
	peer    int64
	roomKey string

	state atomic.Int32
}

func NewPairSession(
	logger *slog.Logger,
	reg registry.Registry,
	st store.Store,
	publisher Publisher,
	link Link,
	user identity.User,
	peer int64,
) *PairSession {
	roomKey := PairKey(user.ID, peer)
	s := &PairSession{
		logger: logger.With(
			slog.String("component", "pair_session"),
			slog.Int64("userID", user.ID),
			slog.String("roomKey", roomKey),
		),
		reg:       reg,
		store:     st,
		publisher: publisher,
		link:      link,
		user:      user,
		peer:      peer,
		roomKey:   roomKey,
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *PairSession) RoomKey() string { return s.roomKey }

func (s *PairSession) State() State { return State(s.state.Load()) }

// Start joins the pair room and begins serving the connection. The close
// handler is registered before the join, so membership is released on
// every exit path, including errors mid-read.
func (s *PairSession) Start() error {
	s.link.SetOnMessageHandler(s.handleFrame)
	s.link.SetOnCloseHandler(s.handleClose)

	member := &registry.Member{
		ID:        s.link.ID(),
		UserID:    s.user.ID,
		Username:  s.user.Username,
		Transport: s.link,
		JoinedAt:  time.Now(),
	}
	if err := s.reg.Join(s.roomKey, member); err != nil {
		s.link.Close(err)
		return err
	}
	s.state.Store(int32(StateActive))
	s.link.Run()
	return nil
}

// handleFrame runs on the connection's read goroutine, so frames from one
// sender are persisted and published in arrival order.
func (s *PairSession) handleFrame(ctx context.Context, _ uuid.UUID, frame []byte) {
	if s.State() != StateActive {
		return
	}

	content := gjson.GetBytes(frame, "content")
	if !content.Exists() || content.Type == gjson.Null || content.String() == "" {
		// Empty, null or absent content is dropped without error; this
		// also covers frames that are not valid JSON.
		return
	}

	record, err := s.store.Append(ctx, s.user.ID, s.peer, content.String())
	if err != nil {
		if store.Fatal(err) {
			s.logger.Error("Message store is gone, closing session", slog.Any("error", err))
			s.link.Close(err)
			return
		}
		// Transient store failure: drop this frame, keep the session. The
		// user can resend; no fan-out happens for an unpersisted message.
		s.logger.Warn("Failed to persist message, dropping frame", slog.Any("error", err))
		return
	}

	payload, err := json.Marshal(record)
	if err != nil {
		s.logger.Error("Failed to serialize message record", slog.Any("error", err))
		return
	}
	s.publisher.Publish(s.roomKey, payload)
}

// handleClose runs exactly once per connection, whatever triggered the
// close. Leaving the room here keeps the invariant that a closed
// connection is never found in a membership set.
func (s *PairSession) handleClose(id uuid.UUID, err error) {
	s.state.Store(int32(StateClosed))
	if lErr := s.reg.Leave(s.roomKey, id); lErr != nil {
		s.logger.Error("Failed to leave room on disconnect", slog.Any("error", lErr))
	}
	s.logger.Info("Session closed", slog.Any("reason", err))
}
