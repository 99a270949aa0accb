package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/domain"
)

type sessionEntry struct {
	RoomID  domain.RoomID
	Session core.ParticipantSession
	Cancel  context.CancelFunc
}

// Registry is the authoritative connection table: every live signaling
// channel has exactly one entry, carrying its session and (at most one)
// current room. Room membership here and in the room's own set are kept
// consistent by the orchestrator's join/leave ordering.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ConnID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.ConnID]*sessionEntry)}
}

func (r *Registry) BindSignal(cid core.ConnID, sess core.ParticipantSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[cid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("bound signal")
}

func (r *Registry) GetSession(cid core.ConnID) (core.ParticipantSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[cid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind drops the connection entry and releases its lifetime context.
// Without the cancel the per-connection child context would stay parked on
// the server context for the life of the process.
func (r *Registry) Unbind(cid core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[cid]
	if !ok {
		return
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	delete(r.sessions, cid)
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("unbind session")
}

// RoomOf reports the room the connection is currently joined to, if any.
func (r *Registry) RoomOf(cid core.ConnID) (domain.RoomID, core.ParticipantSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[cid]
	if !ok || e.RoomID == "" {
		return "", nil, false
	}
	return e.RoomID, e.Session, true
}

func (r *Registry) UpdateRoom(cid core.ConnID, roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[cid]
	if !ok {
		return false
	}
	e.RoomID = roomID
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("room", string(roomID)).Msg("updated room")
	return true
}

func (r *Registry) ClearRoom(cid core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[cid]; ok {
		e.RoomID = ""
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("cleared room association")
}

// Cancel fires the lifetime cancel bound to the connection, if any.
func (r *Registry) Cancel(cid core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.sessions[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("canceled session")
	return true
}
