// Package dispatch fans a payload out to every current member of a room.
package dispatch

import (
	"errors"
	"log/slog"

	"github.com/Busskov/study-clock/pkg/registry"
)

var errOutboundStalled = errors.New("outbound queue stalled")

type Dispatcher struct {
	logger *slog.Logger
	reg    registry.Registry
}

func NewDispatcher(logger *slog.Logger, reg registry.Registry) *Dispatcher {
	return &Dispatcher{
		logger: logger.With(slog.String("component", "dispatcher")),
		reg:    reg,
	}
}

// Publish delivers a payload to every member currently in the room and
// returns the number of successful deliveries. A member whose outbound
// path is broken is closed and skipped; its failure never delays or
// aborts delivery to the others.
func (d *Dispatcher) Publish(roomKey string, payload []byte) int {
	members := d.reg.MembersOf(roomKey)

	delivered := 0
	for _, member := range members {
		if member.Transport.TrySend(payload) {
			delivered++
			continue
		}
		d.logger.Warn("Dropping member with broken outbound path",
			slog.String("memberID", member.ID.String()),
			slog.Int64("userID", member.UserID),
			slog.String("roomKey", roomKey),
		)
		// Closing runs the member's normal disconnect path, which removes
		// it from the registry.
		member.Transport.Close(errOutboundStalled)
	}

	d.logger.Debug("Published to room",
		slog.String("roomKey", roomKey),
		slog.Int("delivered", delivered),
		slog.Int("members", len(members)),
	)
	return delivered
}
