// Package protocol defines the WebSocket messages exchanged over the
// signaling channel. Both the server adapters and the client import it, so
// the two ends can never drift apart on field names.
package protocol

import (
	"encoding/json"

	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/domain"
)

// Message type constants.
const (
	// client -> server
	TypeJoinRoom       = "join-room"
	TypePositionUpdate = "position-update"
	TypeMuteUpdate     = "mute-update"
	TypePing           = "ping"

	// bidirectional signaling, relayed verbatim
	TypeConnectionOffer  = "connection-offer"
	TypeConnectionAnswer = "connection-answer"
	TypeCandidate        = "candidate"

	// server -> client
	TypeExistingMembers   = "existing-members"
	TypeParticipantJoined = "participant-joined"
	TypePositionChanged   = "position-changed"
	TypeMuteChanged       = "mute-changed"
	TypeParticipantLeft   = "participant-left"
	TypePong              = "pong"
	TypeError             = "error"
)

// Envelope is the outer frame; Type selects the payload shape.
type Envelope struct {
	Type string `json:"type"`
}

type JoinRoom struct {
	Type        string        `json:"type"`
	Room        domain.RoomID `json:"room"`
	DisplayName string        `json:"display_name"`
}

type ExistingMembers struct {
	Type    string                `json:"type"`
	Room    domain.RoomID         `json:"room"`
	Members []core.ParticipantDTO `json:"members"`
}

type ParticipantJoined struct {
	Type        string           `json:"type"`
	ConnID      core.ConnID      `json:"connection_id"`
	Account     domain.AccountID `json:"account_id"`
	DisplayName string           `json:"display_name"`
	Position    domain.Position  `json:"position"`
}

// Signal carries connection-offer, connection-answer and candidate frames.
// Client->server sets Target; the relay rewrites it so the recipient sees
// Sender instead. Payload is opaque to the server.
type Signal struct {
	Type    string          `json:"type"`
	Target  core.ConnID     `json:"target,omitempty"`
	Sender  core.ConnID     `json:"sender,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// SDPPayload is the client-side payload of offer/answer frames.
type SDPPayload struct {
	SDP string `json:"sdp"`
}

// CandidatePayload is the client-side payload of candidate frames.
type CandidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type PositionUpdate struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

type PositionChanged struct {
	Type     string          `json:"type"`
	ConnID   core.ConnID     `json:"connection_id"`
	Position domain.Position `json:"position"`
}

type MuteUpdate struct {
	Type  string `json:"type"`
	Muted bool   `json:"muted"`
}

type MuteChanged struct {
	Type   string      `json:"type"`
	ConnID core.ConnID `json:"connection_id"`
	Muted  bool        `json:"muted"`
}

type ParticipantLeft struct {
	Type   string      `json:"type"`
	ConnID core.ConnID `json:"connection_id"`
}

type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
