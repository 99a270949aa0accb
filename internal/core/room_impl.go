package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nearfield/nearfield/internal/domain"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room    *domain.Room
	mu      sync.RWMutex
	members map[ConnID]ParticipantSession
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:    room,
		members: make(map[ConnID]ParticipantSession),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *roomImpl) AddMember(cid ConnID, ps ParticipantSession, announce Frame) []ParticipantDTO {
	r.mu.Lock()
	defer r.mu.Unlock()
	prior := r.snapshotLocked()
	r.members[cid] = ps
	if announce != nil {
		r.fanOutLocked(cid, announce)
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("conn", string(cid)).Msg("member added")
	return prior
}

func (r *roomImpl) RemoveMember(cid ConnID, announce Frame) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[cid]; !ok {
		return len(r.members)
	}
	delete(r.members, cid)
	if announce != nil && len(r.members) > 0 {
		r.fanOutLocked(cid, announce)
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("conn", string(cid)).Msg("member removed")
	return len(r.members)
}

func (r *roomImpl) SetPosition(cid ConnID, pos domain.Position, announce Frame) (PublishResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.members[cid]
	if !ok {
		return PublishResult{}, false
	}
	ps.Meta().Position = pos
	return r.fanOutLocked(cid, announce), true
}

func (r *roomImpl) SetMuted(cid ConnID, muted bool, announce Frame) (PublishResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.members[cid]
	if !ok {
		return PublishResult{}, false
	}
	ps.Meta().Muted = muted
	return r.fanOutLocked(cid, announce), true
}

func (r *roomImpl) MembersSnapshot() []ParticipantDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// fanOutLocked delivers data to every member except the sender. Callers hold
// at least the read lock.
func (r *roomImpl) fanOutLocked(except ConnID, data Frame) PublishResult {
	res := PublishResult{}
	for cid, ps := range r.members {
		if cid == except {
			continue
		}
		if err := ps.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("from", string(except)).
		Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("fan-out result")
	return res
}

func (r *roomImpl) snapshotLocked() []ParticipantDTO {
	out := make([]ParticipantDTO, 0, len(r.members))
	for cid, ps := range r.members {
		m := ps.Meta()
		out = append(out, ParticipantDTO{
			ConnID:      cid,
			Account:     m.Account,
			DisplayName: m.DisplayName,
			Position:    m.Position,
			Muted:       m.Muted,
		})
	}
	return out
}
