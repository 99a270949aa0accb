package domain

// RoomID is an opaque token naming a room. Rooms are created lazily on
// first join and deleted when the last member leaves.
type RoomID string

type Room struct {
	ID RoomID
}
