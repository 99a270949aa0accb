// Package client implements the participant side: the signaling channel,
// the per-peer link manager and the wiring into the spatial engine.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/domain"
	"github.com/nearfield/nearfield/internal/protocol"
)

// Handler receives the server->client messages of the signaling channel.
type Handler interface {
	OnExistingMembers(protocol.ExistingMembers)
	OnParticipantJoined(protocol.ParticipantJoined)
	OnSignal(kind string, sig protocol.Signal)
	OnPositionChanged(protocol.PositionChanged)
	OnMuteChanged(protocol.MuteChanged)
	OnParticipantLeft(protocol.ParticipantLeft)
	OnServerError(protocol.Error)
}

// Client is the persistent bidirectional channel to the coordinator.
type Client struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Connect authenticates against the server (guest login, session cookie)
// and opens the signaling channel.
func Connect(ctx context.Context, serverURL string) (*Client, error) {
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpc := &http.Client{Jar: jar}

	loginURL := base.JoinPath("/api/login").String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login: unexpected status %s", resp.Status)
	}

	wsURL := *base.JoinPath("/api/ws/signal")
	wsURL.Scheme = strings.Replace(wsURL.Scheme, "http", "ws", 1)

	dialer := websocket.Dialer{Jar: jar}
	conn, _, err := dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling channel: %w", err)
	}

	log.Info().Str("module", "client").Str("server", base.Host).Msg("signaling channel open")
	return &Client{conn: conn}, nil
}

// Run reads the channel until it closes or ctx is done, dispatching every
// message to h. Per-sender ordering is preserved by reading sequentially.
func (c *Client) Run(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(h, data)
	}
}

func (c *Client) dispatch(h Handler, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "client").Msg("bad server json")
		return
	}

	switch env.Type {
	case protocol.TypeExistingMembers:
		var m protocol.ExistingMembers
		if json.Unmarshal(data, &m) == nil {
			h.OnExistingMembers(m)
		}
	case protocol.TypeParticipantJoined:
		var m protocol.ParticipantJoined
		if json.Unmarshal(data, &m) == nil {
			h.OnParticipantJoined(m)
		}
	case protocol.TypeConnectionOffer, protocol.TypeConnectionAnswer, protocol.TypeCandidate:
		var m protocol.Signal
		if json.Unmarshal(data, &m) == nil {
			h.OnSignal(env.Type, m)
		}
	case protocol.TypePositionChanged:
		var m protocol.PositionChanged
		if json.Unmarshal(data, &m) == nil {
			h.OnPositionChanged(m)
		}
	case protocol.TypeMuteChanged:
		var m protocol.MuteChanged
		if json.Unmarshal(data, &m) == nil {
			h.OnMuteChanged(m)
		}
	case protocol.TypeParticipantLeft:
		var m protocol.ParticipantLeft
		if json.Unmarshal(data, &m) == nil {
			h.OnParticipantLeft(m)
		}
	case protocol.TypeError:
		var m protocol.Error
		if json.Unmarshal(data, &m) == nil {
			h.OnServerError(m)
		}
	case protocol.TypePong:
	default:
		log.Warn().Str("module", "client").Str("type", env.Type).Msg("unknown server message")
	}
}

func (c *Client) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Client) SendJoin(room domain.RoomID, displayName string) error {
	return c.send(protocol.JoinRoom{Type: protocol.TypeJoinRoom, Room: room, DisplayName: displayName})
}

func (c *Client) SendPosition(pos domain.Position) error {
	return c.send(protocol.PositionUpdate{Type: protocol.TypePositionUpdate, X: pos.X, Y: pos.Y, Z: pos.Z})
}

func (c *Client) SendMute(muted bool) error {
	return c.send(protocol.MuteUpdate{Type: protocol.TypeMuteUpdate, Muted: muted})
}

// SendSignal ships an offer/answer/candidate payload to the named target.
func (c *Client) SendSignal(kind string, target core.ConnID, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.send(protocol.Signal{Type: kind, Target: target, Payload: raw})
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}
