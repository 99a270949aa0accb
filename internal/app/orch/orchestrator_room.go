package orch

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/domain"
	"github.com/nearfield/nearfield/internal/protocol"
)

var ErrNoSession = errors.New("no session for connection")

// Join moves the connection into roomID, creating the room if needed, and
// returns the snapshot of members that were already there. Those members
// learn about the joiner (zero position) inside the same room critical
// section, so the snapshot and the announce can never disagree.
func (o *Orchestrator) Join(cid core.ConnID, roomID domain.RoomID, displayName string) ([]core.ParticipantDTO, error) {
	if prev, _, ok := o.Registry.RoomOf(cid); ok {
		log.Info().Str("module", "orch").Str("conn", string(cid)).Str("from_room", string(prev)).Msg("rejoining, leaving previous room")
		o.Leave(cid)
	}

	sess, ok := o.Registry.GetSession(cid)
	if !ok {
		return nil, ErrNoSession
	}

	meta := sess.Meta()
	name := meta.DisplayName
	if displayName != "" {
		name = displayName
	}
	// A fresh join starts from validated, zeroed state: origin position,
	// unmuted, whatever name was last presented.
	fresh, err := domain.NewParticipant(meta.Account, name)
	if err != nil {
		return nil, err
	}
	*meta = *fresh

	announce, ok := marshal(protocol.ParticipantJoined{
		Type:        protocol.TypeParticipantJoined,
		ConnID:      cid,
		Account:     meta.Account,
		DisplayName: meta.DisplayName,
		Position:    meta.Position,
	})
	if !ok {
		return nil, errors.New("encode join announce")
	}

	room := o.Rooms.GetOrCreate(roomID)
	prior := room.AddMember(cid, sess, announce)
	o.Registry.UpdateRoom(cid, roomID)
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("room", string(roomID)).Msg("joined room")
	return prior, nil
}

// Leave removes the connection from its room, tells the remaining members
// and deletes the room when it empties. Idempotent: a connection in no room
// is a no-op.
func (o *Orchestrator) Leave(cid core.ConnID) {
	roomID, _, ok := o.Registry.RoomOf(cid)
	if !ok {
		return
	}
	if room, ok := o.Rooms.Get(roomID); ok {
		announce, _ := marshal(protocol.ParticipantLeft{
			Type:   protocol.TypeParticipantLeft,
			ConnID: cid,
		})
		if remaining := room.RemoveMember(cid, announce); remaining == 0 {
			o.Rooms.Remove(roomID)
			log.Info().Str("module", "orch").Str("room", string(roomID)).Msg("room emptied, deleted")
		}
	}
	o.Registry.ClearRoom(cid)
}

// Disconnect is the transport-drop path; it is the same cleanup as an
// explicit leave plus dropping the connection table entry.
func (o *Orchestrator) Disconnect(cid core.ConnID) {
	o.Leave(cid)
	o.Registry.Unbind(cid)
}

// UpdatePosition records the sender's new position and broadcasts it to the
// rest of the room. A connection in no room (mid-teardown) is a silent no-op.
func (o *Orchestrator) UpdatePosition(cid core.ConnID, pos domain.Position) {
	roomID, _, ok := o.Registry.RoomOf(cid)
	if !ok {
		return
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}
	announce, ok2 := marshal(protocol.PositionChanged{
		Type:     protocol.TypePositionChanged,
		ConnID:   cid,
		Position: pos,
	})
	if !ok2 {
		return
	}
	res, _ := room.SetPosition(cid, pos, announce)
	o.applyPolicy(room, res)
}

// UpdateMuted mirrors UpdatePosition for the muted flag.
func (o *Orchestrator) UpdateMuted(cid core.ConnID, muted bool) {
	roomID, _, ok := o.Registry.RoomOf(cid)
	if !ok {
		return
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}
	announce, ok2 := marshal(protocol.MuteChanged{
		Type:   protocol.TypeMuteChanged,
		ConnID: cid,
		Muted:  muted,
	})
	if !ok2 {
		return
	}
	res, _ := room.SetMuted(cid, muted, announce)
	o.applyPolicy(room, res)
}

// ListOthers returns the sibling participants in the caller's room, or nil
// when the caller is not joined anywhere.
func (o *Orchestrator) ListOthers(cid core.ConnID) []core.ParticipantDTO {
	roomID, _, ok := o.Registry.RoomOf(cid)
	if !ok {
		return nil
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return nil
	}
	all := room.MembersSnapshot()
	out := all[:0]
	for _, m := range all {
		if m.ConnID != cid {
			out = append(out, m)
		}
	}
	return out
}
