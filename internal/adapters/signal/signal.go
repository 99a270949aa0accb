package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nearfield/nearfield/internal/app/orch"
	"github.com/nearfield/nearfield/internal/config"
	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// SignalWSController owns the persistent bidirectional channel of every
// connected client: upgrade, pumps, message dispatch and teardown.
type SignalWSController struct {
	Orch      *orch.Orchestrator
	Directory core.RoomDirectory
	Limiter   *JoinRateLimiter

	readLimit    int64
	pingPeriod   time.Duration
	writeTimeout time.Duration
}

func NewSignalWSController(o *orch.Orchestrator, dir core.RoomDirectory, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Orch:         o,
		Directory:    dir,
		Limiter:      NewJoinRateLimiter(cfg.JoinLimit, cfg.JoinWindow),
		readLimit:    cfg.ReadLimit,
		pingPeriod:   cfg.PingPeriod,
		writeTimeout: 5 * time.Second,
	}
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until either
// side goes away. The account id is resolved by the auth middleware before
// we get here; unauthenticated callers never reach the upgrade.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	account := domain.AccountID(c.GetString("account_id"))
	cid := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(cid)).Str("account", string(account)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.readLimit > 0 {
		ws.SetReadLimit(ctl.readLimit)
	}
	if ctl.pingPeriod > 0 {
		// Pong wait must outlast the ping period or a healthy idle peer times out.
		pongWait := ctl.pingPeriod * 10 / 9
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	meta := &domain.Participant{Account: account, DisplayName: "guest"}
	sess := core.NewParticipantSession(meta, conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(cid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cid, conn)
}
