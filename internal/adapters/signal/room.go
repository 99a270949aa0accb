package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/domain"
	"github.com/nearfield/nearfield/internal/protocol"
)

func (ctl *SignalWSController) handleJoin(
	cid core.ConnID,
	conn core.SignalConnection,
	data []byte,
) {
	var p protocol.JoinRoom
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad payload")
		return
	}
	if p.Room == "" {
		ctl.sendError(conn, "empty room id")
		return
	}

	sess, ok := ctl.Orch.Registry.GetSession(cid)
	if !ok {
		// Connection is mid-teardown; nothing to answer to.
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(sess.Meta().Account) {
		ctl.sendError(conn, "too many join attempts, slow down")
		return
	}
	if ctl.Directory != nil && !ctl.Directory.RoomExists(p.Room) {
		log.Warn().Str("module", "signal").Str("room", string(p.Room)).Msg("join refused, unknown room")
		ctl.sendError(conn, "room does not exist")
		return
	}

	log.Info().Str("module", "signal").Str("conn", string(cid)).Str("room", string(p.Room)).Msg("join")
	members, err := ctl.Orch.Join(cid, p.Room, p.DisplayName)
	if err != nil {
		if errors.Is(err, domain.ErrDisplayNameTooLong) {
			ctl.sendError(conn, "display name too long")
			return
		}
		log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("join failed")
		ctl.sendError(conn, "join failed")
		return
	}

	ctl.sendJSON(conn, protocol.ExistingMembers{
		Type:    protocol.TypeExistingMembers,
		Room:    p.Room,
		Members: members,
	})
}
