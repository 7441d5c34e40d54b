// Package registry tracks which live sessions belong to which room. It is
// the only shared mutable structure the messaging core owns; every
// membership mutation and every fan-out snapshot goes through it.
package registry

import "github.com/google/uuid"

type Registry interface {
	// Join adds a member to a room, creating the room entry if absent.
	// Re-joining the same room is a no-op; joining a different room moves
	// the member, so a session is in at most one room at a time.
	Join(roomKey string, member *Member) error

	// Leave removes a member from a room. It is a no-op when the member is
	// not present. Empty rooms are pruned.
	Leave(roomKey string, memberID uuid.UUID) error

	// MembersOf returns a point-in-time snapshot of a room's membership.
	// The returned slice is safe to iterate while joins and leaves proceed
	// concurrently.
	MembersOf(roomKey string) []*Member

	FindRoom(roomKey string) (*Room, bool)

	// UserConnectionCount reports how many members a user currently has
	// across all rooms.
	UserConnectionCount(userID int64) int

	// OldestUserMember returns the user's longest-lived member, used to
	// cycle connections when a per-user limit is reached.
	OldestUserMember(userID int64) (*Member, bool)

	// AllMembers snapshots every member in every room, for shutdown sweeps.
	AllMembers() []*Member
}
