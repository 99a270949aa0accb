package client

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/domain"
	"github.com/nearfield/nearfield/internal/protocol"
	"github.com/nearfield/nearfield/internal/spatial"
)

// Manager owns one peer link per remote room member and the spatial sources
// their audio renders through. It consumes presence and relay messages from
// the Client and drives the spatial engine.
//
// Negotiation role: the joiner initiates. The existing-members snapshot
// makes the local side the discoverer of everyone already present, so it
// offers to each of them; a participant-joined event means the newcomer will
// offer to us, and we only respond.
type Manager struct {
	client  *Client
	media   MediaSource
	sources *spatial.SourceSet
	rtcCfg  webrtc.Configuration

	mu       sync.Mutex
	links    map[core.ConnID]*PeerLink
	peers    map[core.ConnID]*domain.Participant
	listener domain.Position
	closed   bool
}

func NewManager(c *Client, media MediaSource, sources *spatial.SourceSet) *Manager {
	return &Manager{
		client:  c,
		media:   media,
		sources: sources,
		rtcCfg:  DefaultWebRTCConfig(),
		links:   make(map[core.ConnID]*PeerLink),
		peers:   make(map[core.ConnID]*domain.Participant),
	}
}

func (m *Manager) Join(room domain.RoomID, displayName string) error {
	return m.client.SendJoin(room, displayName)
}

// SetLocalPosition reports our movement to the room and re-derives every
// source position in the listener-centered frame.
func (m *Manager) SetLocalPosition(pos domain.Position) error {
	if err := m.client.SendPosition(pos); err != nil {
		return err
	}
	m.mu.Lock()
	m.listener = pos
	peers := make(map[core.ConnID]domain.Position, len(m.peers))
	for cid, p := range m.peers {
		peers[cid] = p.Position
	}
	m.mu.Unlock()

	for cid, remote := range peers {
		m.sources.SetPosition(cid, remote.Sub(pos))
	}
	return nil
}

func (m *Manager) SetMuted(muted bool) error {
	return m.client.SendMute(muted)
}

func (m *Manager) SetSpatial(on bool) {
	m.sources.SetSpatial(on)
}

// Close is the single exit path: every peer link torn down, capture stopped,
// signaling channel disconnected. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	links := make([]*PeerLink, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.links = make(map[core.ConnID]*PeerLink)
	m.peers = make(map[core.ConnID]*domain.Participant)
	m.mu.Unlock()

	for _, l := range links {
		m.sources.Remove(l.Remote())
		l.Close()
	}
	if m.media != nil {
		m.media.Stop()
	}
	m.client.Close()
	log.Info().Str("module", "client.manager").Msg("left room, all links closed")
}

// --- Handler ---

func (m *Manager) OnExistingMembers(msg protocol.ExistingMembers) {
	log.Info().Str("module", "client.manager").Str("room", string(msg.Room)).Int("members", len(msg.Members)).Msg("joined room")
	for _, member := range msg.Members {
		m.recordPeer(member.ConnID, member.Account, member.DisplayName, member.Position, member.Muted)
		m.initiate(member.ConnID)
	}
}

func (m *Manager) OnParticipantJoined(msg protocol.ParticipantJoined) {
	log.Info().Str("module", "client.manager").Str("conn", string(msg.ConnID)).Str("name", msg.DisplayName).Msg("participant joined")
	// The newcomer is the discoverer; it will offer to us.
	m.recordPeer(msg.ConnID, msg.Account, msg.DisplayName, msg.Position, false)
}

func (m *Manager) OnSignal(kind string, sig protocol.Signal) {
	switch kind {
	case protocol.TypeConnectionOffer:
		m.handleOffer(sig)
	case protocol.TypeConnectionAnswer:
		m.handleAnswer(sig)
	case protocol.TypeCandidate:
		m.handleCandidate(sig)
	}
}

func (m *Manager) OnPositionChanged(msg protocol.PositionChanged) {
	m.mu.Lock()
	if p, ok := m.peers[msg.ConnID]; ok {
		p.Position = msg.Position
	}
	listener := m.listener
	m.mu.Unlock()
	// A position may arrive before the source exists; the peer record above
	// keeps it for when the track lands.
	m.sources.SetPosition(msg.ConnID, msg.Position.Sub(listener))
}

func (m *Manager) OnMuteChanged(msg protocol.MuteChanged) {
	m.mu.Lock()
	if p, ok := m.peers[msg.ConnID]; ok {
		p.Muted = msg.Muted
	}
	m.mu.Unlock()
}

func (m *Manager) OnParticipantLeft(msg protocol.ParticipantLeft) {
	log.Info().Str("module", "client.manager").Str("conn", string(msg.ConnID)).Msg("participant left")
	m.teardown(msg.ConnID)
}

func (m *Manager) OnServerError(msg protocol.Error) {
	log.Warn().Str("module", "client.manager").Str("error", msg.Error).Msg("server error")
}

// --- link lifecycle ---

func (m *Manager) recordPeer(cid core.ConnID, account domain.AccountID, name string, pos domain.Position, muted bool) {
	m.mu.Lock()
	m.peers[cid] = &domain.Participant{Account: account, DisplayName: name, Position: pos, Muted: muted}
	m.mu.Unlock()
}

// newLink creates and registers a link for the remote, wiring callbacks.
// Returns nil when one already exists or the manager is closed.
func (m *Manager) newLink(remote core.ConnID) *PeerLink {
	m.mu.Lock()
	if m.closed || m.links[remote] != nil {
		m.mu.Unlock()
		return nil
	}
	link, err := newPeerLink(m.rtcCfg, remote, m.media)
	if err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Str("module", "client.manager").Str("remote", string(remote)).Msg("create peer link")
		return nil
	}
	m.links[remote] = link
	m.mu.Unlock()

	link.OnStateChange(m.onLinkState)
	link.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		payload := protocol.CandidatePayload{
			Candidate:     ci.Candidate,
			SDPMid:        ci.SDPMid,
			SDPMLineIndex: ci.SDPMLineIndex,
		}
		if err := m.client.SendSignal(protocol.TypeCandidate, remote, payload); err != nil {
			log.Error().Err(err).Str("module", "client.manager").Str("remote", string(remote)).Msg("send candidate")
		}
	})
	link.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.attachSource(remote, track)
	})
	return link
}

func (m *Manager) initiate(remote core.ConnID) {
	link := m.newLink(remote)
	if link == nil {
		return
	}
	sdp, err := link.CreateOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "client.manager").Str("remote", string(remote)).Msg("create offer")
		m.teardown(remote)
		return
	}
	if err := m.client.SendSignal(protocol.TypeConnectionOffer, remote, protocol.SDPPayload{SDP: sdp}); err != nil {
		log.Error().Err(err).Str("module", "client.manager").Str("remote", string(remote)).Msg("send offer")
		m.teardown(remote)
	}
}

func (m *Manager) handleOffer(sig protocol.Signal) {
	var p protocol.SDPPayload
	if err := json.Unmarshal(sig.Payload, &p); err != nil {
		log.Error().Err(err).Str("module", "client.manager").Msg("bad offer payload")
		return
	}
	link := m.newLink(sig.Sender)
	if link == nil {
		// Already negotiating with this remote; both sides offering means a
		// protocol violation, keep the link we have.
		log.Warn().Str("module", "client.manager").Str("remote", string(sig.Sender)).Msg("offer for existing link, ignored")
		return
	}
	answer, err := link.ApplyOffer(p.SDP)
	if err != nil {
		log.Error().Err(err).Str("module", "client.manager").Str("remote", string(sig.Sender)).Msg("apply offer")
		m.teardown(sig.Sender)
		return
	}
	if err := m.client.SendSignal(protocol.TypeConnectionAnswer, sig.Sender, protocol.SDPPayload{SDP: answer}); err != nil {
		log.Error().Err(err).Str("module", "client.manager").Str("remote", string(sig.Sender)).Msg("send answer")
		m.teardown(sig.Sender)
	}
}

func (m *Manager) handleAnswer(sig protocol.Signal) {
	link := m.link(sig.Sender)
	if link == nil {
		log.Warn().Str("module", "client.manager").Str("remote", string(sig.Sender)).Msg("answer for unknown link")
		return
	}
	var p protocol.SDPPayload
	if err := json.Unmarshal(sig.Payload, &p); err != nil {
		log.Error().Err(err).Str("module", "client.manager").Msg("bad answer payload")
		return
	}
	if err := link.ApplyAnswer(p.SDP); err != nil {
		log.Error().Err(err).Str("module", "client.manager").Str("remote", string(sig.Sender)).Msg("apply answer")
		m.teardown(sig.Sender)
	}
}

func (m *Manager) handleCandidate(sig protocol.Signal) {
	link := m.link(sig.Sender)
	if link == nil {
		// No link, no queue: candidates for absent links are dropped.
		return
	}
	var p protocol.CandidatePayload
	if err := json.Unmarshal(sig.Payload, &p); err != nil {
		log.Error().Err(err).Str("module", "client.manager").Msg("bad candidate payload")
		return
	}
	ci := webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}
	if err := link.AddCandidate(ci); err != nil {
		log.Error().Err(err).Str("module", "client.manager").Str("remote", string(sig.Sender)).Msg("add candidate")
	}
}

func (m *Manager) link(remote core.ConnID) *PeerLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[remote]
}

// attachSource binds the first inbound track of a remote to a new spatial
// source at the remote's last known broadcast position (origin if none yet).
func (m *Manager) attachSource(remote core.ConnID, track *webrtc.TrackRemote) {
	m.mu.Lock()
	pos := domain.Origin
	if p, ok := m.peers[remote]; ok {
		pos = p.Position
	}
	listener := m.listener
	m.mu.Unlock()

	m.sources.Add(remote, pos.Sub(listener))
	log.Info().Str("module", "client.manager").Str("remote", string(remote)).
		Str("kind", track.Kind().String()).Msg("remote track attached to spatial source")

	// Keep the track drained; the render graph taps the source parameters.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				if err != io.EOF {
					log.Debug().Err(err).Str("module", "client.manager").Str("remote", string(remote)).Msg("track read ended")
				}
				return
			}
		}
	}()
}

func (m *Manager) onLinkState(remote core.ConnID, s LinkState) {
	log.Info().Str("module", "client.manager").Str("remote", string(remote)).Str("state", s.String()).Msg("link state")
	if s == LinkFailed {
		// Visible per-peer failure; no automatic retry, a rejoin establishes
		// a fresh link.
		log.Warn().Str("module", "client.manager").Str("remote", string(remote)).Msg("connection to participant failed")
		m.teardown(remote)
	}
}

// teardown closes the link and its spatial source; idempotent.
func (m *Manager) teardown(remote core.ConnID) {
	m.mu.Lock()
	link := m.links[remote]
	delete(m.links, remote)
	delete(m.peers, remote)
	m.mu.Unlock()

	m.sources.Remove(remote)
	if link != nil {
		link.Close()
	}
}
