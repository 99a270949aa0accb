package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/protocol"
)

// handleRelay forwards connection-offer, connection-answer and candidate
// frames to the named target. The payload is opaque here; only the envelope
// is rewritten (target out, sender in). Delivery is fire-and-forget.
func (ctl *SignalWSController) handleRelay(
	cid core.ConnID,
	kind string,
	data []byte,
) {
	var p protocol.Signal
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("kind", kind).Msg("bad signal payload")
		return
	}
	if p.Target == "" {
		log.Warn().Str("module", "signal").Str("conn", string(cid)).Str("kind", kind).Msg("signal without target")
		return
	}
	ctl.Orch.Forward(cid, p.Target, kind, p.Payload)
}
