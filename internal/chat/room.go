package chat

import "fmt"

// SupportRoomKey is the single well-known room every support client joins.
const SupportRoomKey = "support_chat"

// PairKey derives the room key for a private conversation. The ids are
// put in ascending order first, so both participants compute the same key
// no matter who initiated the connection.
func PairKey(a, b int64) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("chat_%d_%d", a, b)
}
