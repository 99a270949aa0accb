package signal

import (
	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/protocol"
)

func (ctl *SignalWSController) handlePing(
	conn core.SignalConnection,
) {
	ctl.sendJSON(conn, protocol.Envelope{Type: protocol.TypePong})
}
