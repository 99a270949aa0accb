package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/domain"
	"github.com/nearfield/nearfield/internal/protocol"
)

// Position and mute updates from a connection that is not in any room are
// silent no-ops: the connection may be mid-teardown and the sender gets no
// error for racing its own leave.

func (ctl *SignalWSController) handlePositionUpdate(
	cid core.ConnID,
	conn core.SignalConnection,
	data []byte,
) {
	var p protocol.PositionUpdate
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad position payload")
		ctl.sendError(conn, "bad payload")
		return
	}
	ctl.Orch.UpdatePosition(cid, domain.Position{X: p.X, Y: p.Y, Z: p.Z})
}

func (ctl *SignalWSController) handleMuteUpdate(
	cid core.ConnID,
	conn core.SignalConnection,
	data []byte,
) {
	var p protocol.MuteUpdate
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad mute payload")
		ctl.sendError(conn, "bad payload")
		return
	}
	ctl.Orch.UpdateMuted(cid, p.Muted)
}
