package memregistry

import (
	"log/slog"
	"sync"

	"github.com/Busskov/study-clock/pkg/registry"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// InMemoryRegistry keeps room membership in process memory behind a single
// registry-wide lock. Lock hold times are bounded to map operations and
// snapshot copies; no I/O ever happens under the lock.
type InMemoryRegistry struct {
	mu      sync.RWMutex
	rooms   map[string]*registry.Room
	members map[uuid.UUID]string // member ID -> current room key

	logger *slog.Logger
}

func NewInMemoryRegistry(logger *slog.Logger) *InMemoryRegistry {
	return &InMemoryRegistry{
		rooms:   make(map[string]*registry.Room),
		members: make(map[uuid.UUID]string),
		logger:  logger.With(slog.String("component", "registry_inmemory")),
	}
}

// compile-time check to ensure InMemoryRegistry implements Registry.
var _ registry.Registry = (*InMemoryRegistry)(nil)

func (r *InMemoryRegistry) Join(roomKey string, member *registry.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.members[member.ID]; ok {
		if current == roomKey {
			// Already a member of this room.
			return nil
		}
		// A session lives in at most one room; joining another moves it.
		r.removeLocked(current, member.ID)
	}

	room, exists := r.rooms[roomKey]
	if !exists {
		room = &registry.Room{
			Key:     roomKey,
			Members: make(map[uuid.UUID]*registry.Member),
		}
		r.rooms[roomKey] = room
	}

	room.Members[member.ID] = member
	r.members[member.ID] = roomKey

	r.logger.Debug("Member joined room",
		slog.String("memberID", member.ID.String()),
		slog.Int64("userID", member.UserID),
		slog.String("roomKey", roomKey),
	)
	return nil
}

func (r *InMemoryRegistry) Leave(roomKey string, memberID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.members[memberID]
	if !ok || current != roomKey {
		// Not a member; leaving is a no-op.
		return nil
	}
	r.removeLocked(roomKey, memberID)

	r.logger.Debug("Member left room",
		slog.String("memberID", memberID.String()),
		slog.String("roomKey", roomKey),
	)
	return nil
}

// removeLocked drops a member from a room and prunes the room when it
// becomes empty. Callers must hold the write lock.
func (r *InMemoryRegistry) removeLocked(roomKey string, memberID uuid.UUID) {
	delete(r.members, memberID)
	room, ok := r.rooms[roomKey]
	if !ok {
		return
	}
	delete(room.Members, memberID)
	if len(room.Members) == 0 {
		delete(r.rooms, roomKey)
		r.logger.Debug("Removed empty room", slog.String("roomKey", roomKey))
	}
}

func (r *InMemoryRegistry) MembersOf(roomKey string) []*registry.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomKey]
	if !ok {
		return nil
	}
	return lo.Values(room.Members)
}

func (r *InMemoryRegistry) FindRoom(roomKey string) (*registry.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomKey]
	return room, ok
}

func (r *InMemoryRegistry) UserConnectionCount(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, room := range r.rooms {
		for _, m := range room.Members {
			if m.UserID == userID {
				count++
			}
		}
	}
	return count
}

func (r *InMemoryRegistry) OldestUserMember(userID int64) (*registry.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var oldest *registry.Member
	for _, room := range r.rooms {
		for _, m := range room.Members {
			if m.UserID != userID {
				continue
			}
			if oldest == nil || m.JoinedAt.Before(oldest.JoinedAt) {
				oldest = m
			}
		}
	}
	return oldest, oldest != nil
}

func (r *InMemoryRegistry) AllMembers() []*registry.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*registry.Member
	for _, room := range r.rooms {
		all = append(all, lo.Values(room.Members)...)
	}
	return all
}
