// Package orch coordinates the registry, the room table and the relay.
// Every inbound message from one connection is handled to completion on
// that connection's read loop, so per-sender ordering needs no extra
// machinery here.
package orch

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/nearfield/nearfield/internal/app"
	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/protocol"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomFactory
	Policy   app.Policy
}

// Forward relays a signaling frame to the target connection. The relay is
// deliberately permissive: any live connection id is a valid target, and an
// absent target means a silent drop — never an error back to the sender.
func (o *Orchestrator) Forward(from core.ConnID, target core.ConnID, kind string, payload json.RawMessage) {
	sess, ok := o.Registry.GetSession(target)
	if !ok {
		log.Debug().Str("module", "orch").Str("from", string(from)).Str("target", string(target)).
			Str("kind", kind).Msg("relay target gone, dropping")
		return
	}
	frame, err := json.Marshal(protocol.Signal{
		Type:    kind,
		Sender:  from,
		Payload: payload,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("relay marshal")
		return
	}
	// Best-effort: a full target buffer drops the frame like an absent peer.
	_ = sess.Signal().TrySend(frame)
}

func (o *Orchestrator) applyPolicy(room core.RoomService, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("conn", string(slow)).Msg("kicking slow member")
			o.Registry.Cancel(slow)
			o.Leave(slow)
		case app.DropFrame, app.NoAction:
		}
	}
}

func marshal(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("frame marshal")
		return nil, false
	}
	return b, true
}
