package app

import "github.com/nearfield/nearfield/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a member whose send buffer is full when a
// broadcast reaches it. A stalled receiver must never stall the room.
type Policy interface {
	OnBackPressure(room core.RoomService, cid core.ConnID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room core.RoomService, cid core.ConnID) BackpressureAction {
	return KickMember
}
