package client

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearfield/nearfield/internal/core"
)

// Tests run without any network: offer/answer creation and candidate
// queueing are all local operations in pion.
func offlineConfig() webrtc.Configuration {
	return webrtc.Configuration{}
}

func TestLinkStateStrings(t *testing.T) {
	assert.Equal(t, "idle", LinkIdle.String())
	assert.Equal(t, "negotiating", LinkNegotiating.String())
	assert.Equal(t, "connected", LinkConnected.String())
	assert.Equal(t, "failed", LinkFailed.String())
	assert.Equal(t, "closed", LinkClosed.String())
}

func TestOfferAnswerNegotiation(t *testing.T) {
	media, err := NewSilenceSource()
	require.NoError(t, err)
	defer media.Stop()

	initiator, err := newPeerLink(offlineConfig(), "remote-b", media)
	require.NoError(t, err)
	defer initiator.Close()
	responder, err := newPeerLink(offlineConfig(), "remote-a", media)
	require.NoError(t, err)
	defer responder.Close()

	assert.Equal(t, LinkIdle, initiator.State())

	offer, err := initiator.CreateOffer()
	require.NoError(t, err)
	require.NotEmpty(t, offer)
	assert.Equal(t, LinkNegotiating, initiator.State())

	answer, err := responder.ApplyOffer(offer)
	require.NoError(t, err)
	require.NotEmpty(t, answer)
	assert.Equal(t, LinkNegotiating, responder.State())

	require.NoError(t, initiator.ApplyAnswer(answer))
	assert.Equal(t, LinkConnected, initiator.State())
}

func TestCandidateQueuedUntilRemoteDescription(t *testing.T) {
	link, err := newPeerLink(offlineConfig(), "remote", nil)
	require.NoError(t, err)
	defer link.Close()

	mid := "0"
	idx := uint16(0)
	ci := webrtc.ICECandidateInit{
		Candidate:     "candidate:1 1 udp 2130706431 127.0.0.1 54400 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
	// No remote description yet: must queue, not fail.
	require.NoError(t, link.AddCandidate(ci))

	link.mu.Lock()
	queued := len(link.pending)
	link.mu.Unlock()
	assert.Equal(t, 1, queued)
}

func TestCloseIsIdempotentAndTerminal(t *testing.T) {
	var states []LinkState
	link, err := newPeerLink(offlineConfig(), "remote", nil)
	require.NoError(t, err)
	link.OnStateChange(func(_ core.ConnID, s LinkState) {
		states = append(states, s)
	})

	link.Close()
	link.Close()
	assert.Equal(t, LinkClosed, link.State())
	assert.Equal(t, []LinkState{LinkClosed}, states, "second close must not fire the callback again")

	_, err = link.CreateOffer()
	assert.ErrorIs(t, err, ErrLinkClosed)
	assert.ErrorIs(t, link.AddCandidate(webrtc.ICECandidateInit{}), ErrLinkClosed)
}
