package core

import (
	"net/http"

	"github.com/nearfield/nearfield/internal/domain"
)

// Frame is a raw encoded payload ready for the transport.
type Frame []byte

// ConnID is the opaque handle of one active signaling channel. It is
// unrelated to account identity; the same account may hold several.
type ConnID string

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// ParticipantSession binds domain.Participant and its transport endpoint.
// This is what a room stores and fans out to.
type ParticipantSession interface {
	Meta() *domain.Participant
	Signal() SignalConnection
}

// PublishResult reports delivery stats/backpressure to the orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []ConnID
}

// ParticipantDTO is a read-only view for the wire (no transport fields).
type ParticipantDTO struct {
	ConnID      ConnID           `json:"connection_id"`
	Account     domain.AccountID `json:"account_id"`
	DisplayName string           `json:"display_name"`
	Position    domain.Position  `json:"position"`
	Muted       bool             `json:"muted"`
}

// RoomService is the core-facing API of a room. It owns the membership set
// but never touches transport resources. Every mutation fans out its
// announce frame to the other members inside the same critical section, so
// no member can observe a half-updated room.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []ParticipantDTO

	// AddMember inserts the session, announces it to everyone already
	// present and returns the snapshot of those prior members.
	AddMember(cid ConnID, ps ParticipantSession, announce Frame) []ParticipantDTO

	// RemoveMember drops the member (no-op if absent), announces to the
	// remainder and returns how many members are left.
	RemoveMember(cid ConnID, announce Frame) int

	// SetPosition / SetMuted update the member's state and broadcast the
	// announce frame to every other member. The bool reports whether the
	// connection was actually a member.
	SetPosition(cid ConnID, pos domain.Position, announce Frame) (PublishResult, bool)
	SetMuted(cid ConnID, muted bool, announce Frame) (PublishResult, bool)
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

type RoomFactory interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	Remove(id domain.RoomID)
}

// Authenticator is the external account collaborator. The core only needs
// the yes/no fact plus the account id; credentials live elsewhere.
type Authenticator interface {
	Authenticate(r *http.Request) (domain.AccountID, bool)
}

// RoomDirectory is the external room-existence collaborator: may this room
// id be joined at all. The registry still auto-creates membership state
// lazily for ids the directory admits.
type RoomDirectory interface {
	RoomExists(id domain.RoomID) bool
}
