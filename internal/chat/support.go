package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Busskov/study-clock/internal/identity"
	"github.com/Busskov/study-clock/pkg/registry"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// SupportFrame is the outbound wire shape of the support room.
type SupportFrame struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// SupportSession is one connection in the shared support room. There is no
// authentication gate: anonymous participants are labeled with a fallback
// name, and nothing is persisted.
type SupportSession struct {
	logger    *slog.Logger
	reg       registry.Registry
	publisher Publisher
	link      Link

	userID   int64
	username string

	state atomic.Int32
}

func NewSupportSession(
	logger *slog.Logger,
	reg registry.Registry,
	publisher Publisher,
	link Link,
	user *identity.User,
	anonymousName string,
) *SupportSession {
	username := anonymousName
	var userID int64
	if user != nil {
		userID = user.ID
		if user.Username != "" {
			username = user.Username
		}
	}
	s := &SupportSession{
		logger: logger.With(
			slog.String("component", "support_session"),
			slog.String("username", username),
		),
		reg:       reg,
		publisher: publisher,
		link:      link,
		userID:    userID,
		username:  username,
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *SupportSession) State() State { return State(s.state.Load()) }

func (s *SupportSession) Start() error {
	s.link.SetOnMessageHandler(s.handleFrame)
	s.link.SetOnCloseHandler(s.handleClose)

	member := &registry.Member{
		ID:        s.link.ID(),
		UserID:    s.userID,
		Username:  s.username,
		Transport: s.link,
		JoinedAt:  time.Now(),
	}
	if err := s.reg.Join(SupportRoomKey, member); err != nil {
		s.link.Close(err)
		return err
	}
	s.state.Store(int32(StateActive))
	s.link.Run()
	return nil
}

func (s *SupportSession) handleFrame(_ context.Context, _ uuid.UUID, frame []byte) {
	if s.State() != StateActive {
		return
	}

	message := gjson.GetBytes(frame, "message")
	if !message.Exists() || message.Type == gjson.Null {
		// Malformed frame; drop it and stay active.
		return
	}

	payload, err := json.Marshal(SupportFrame{
		Message:  message.String(),
		Username: s.username,
	})
	if err != nil {
		s.logger.Error("Failed to serialize support frame", slog.Any("error", err))
		return
	}
	s.publisher.Publish(SupportRoomKey, payload)
}

func (s *SupportSession) handleClose(id uuid.UUID, err error) {
	s.state.Store(int32(StateClosed))
	if lErr := s.reg.Leave(SupportRoomKey, id); lErr != nil {
		s.logger.Error("Failed to leave support room on disconnect", slog.Any("error", lErr))
	}
	s.logger.Info("Support session closed", slog.Any("reason", err))
}
