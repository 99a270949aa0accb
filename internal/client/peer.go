package client

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/nearfield/nearfield/internal/core"
)

// LinkState is the lifecycle of one peer link. Closed is terminal; Failed is
// reached from Negotiating or Connected on unrecoverable transport error and
// always resolves to Closed.
type LinkState int

const (
	LinkIdle LinkState = iota
	LinkNegotiating
	LinkConnected
	LinkFailed
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkIdle:
		return "idle"
	case LinkNegotiating:
		return "negotiating"
	case LinkConnected:
		return "connected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

var ErrLinkClosed = errors.New("peer link closed")

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// PeerLink owns the direct media path to one remote participant. Candidates
// arriving before the remote description are queued and applied once it
// lands, so candidate frames may be handled in any state.
type PeerLink struct {
	remote core.ConnID
	pc     *webrtc.PeerConnection

	mu        sync.Mutex
	state     LinkState
	remoteSet bool
	pending   []webrtc.ICECandidateInit

	onState func(remote core.ConnID, s LinkState)
}

func newPeerLink(cfg webrtc.Configuration, remote core.ConnID, media MediaSource) (*PeerLink, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	if media != nil {
		if _, err := pc.AddTrack(media.Track()); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	l := &PeerLink{remote: remote, pc: pc, state: LinkIdle}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "client.peer").Str("remote", string(remote)).Str("peer_state", s.String()).Msg("peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			l.setState(LinkConnected)
		case webrtc.PeerConnectionStateFailed:
			l.setState(LinkFailed)
		case webrtc.PeerConnectionStateClosed:
			l.setState(LinkClosed)
		}
	})

	return l, nil
}

func (l *PeerLink) Remote() core.ConnID { return l.remote }

func (l *PeerLink) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// OnStateChange registers the state callback; set before negotiation starts.
func (l *PeerLink) OnStateChange(fn func(remote core.ConnID, s LinkState)) {
	l.mu.Lock()
	l.onState = fn
	l.mu.Unlock()
}

func (l *PeerLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	l.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			fn(c.ToJSON())
		}
	})
}

func (l *PeerLink) OnTrack(fn func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	l.pc.OnTrack(fn)
}

// CreateOffer starts negotiation as the initiating side. Trickle ICE: the
// offer ships immediately and candidates follow via OnICECandidate, so one
// peer's gathering never blocks another's negotiation.
func (l *PeerLink) CreateOffer() (string, error) {
	l.mu.Lock()
	if l.state == LinkClosed || l.state == LinkFailed {
		l.mu.Unlock()
		return "", ErrLinkClosed
	}
	l.mu.Unlock()

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	l.setState(LinkNegotiating)
	return offer.SDP, nil
}

// ApplyOffer handles negotiation as the responding side and returns the
// answer SDP.
func (l *PeerLink) ApplyOffer(sdp string) (string, error) {
	if err := l.setRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return "", err
	}
	l.setState(LinkNegotiating)

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

// ApplyAnswer completes negotiation on the initiating side.
func (l *PeerLink) ApplyAnswer(sdp string) error {
	if err := l.setRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return err
	}
	l.setState(LinkConnected)
	return nil
}

func (l *PeerLink) setRemoteDescription(desc webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return err
	}

	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, ci := range pending {
		if err := l.pc.AddICECandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "client.peer").Str("remote", string(l.remote)).Msg("queued candidate")
		}
	}
	return nil
}

// AddCandidate applies a remote candidate, queuing it when the remote
// description has not arrived yet.
func (l *PeerLink) AddCandidate(ci webrtc.ICECandidateInit) error {
	l.mu.Lock()
	if l.state == LinkClosed {
		l.mu.Unlock()
		return ErrLinkClosed
	}
	if !l.remoteSet {
		l.pending = append(l.pending, ci)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return l.pc.AddICECandidate(ci)
}

// Close tears the link down. Idempotent; the state ends at Closed.
func (l *PeerLink) Close() {
	l.mu.Lock()
	if l.state == LinkClosed {
		l.mu.Unlock()
		return
	}
	l.state = LinkClosed
	fn := l.onState
	l.mu.Unlock()

	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "client.peer").Str("remote", string(l.remote)).Msg("close error")
	}
	if fn != nil {
		fn(l.remote, LinkClosed)
	}
}

func (l *PeerLink) setState(s LinkState) {
	l.mu.Lock()
	if l.state == LinkClosed || l.state == s {
		l.mu.Unlock()
		return
	}
	l.state = s
	fn := l.onState
	l.mu.Unlock()
	if fn != nil {
		fn(l.remote, s)
	}
}
