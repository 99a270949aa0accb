package orch

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearfield/nearfield/internal/app"
	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/domain"
	"github.com/nearfield/nearfield/internal/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {}

// typed decodes every received frame of the given type.
func typed[T any](t *testing.T, f *fakeConn, msgType string) []T {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []T
	for _, fr := range f.frames {
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(fr, &env))
		if env.Type != msgType {
			continue
		}
		var m T
		require.NoError(t, json.Unmarshal(fr, &m))
		out = append(out, m)
	}
	return out
}

func newOrchestrator() *Orchestrator {
	return &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   app.SimplePolicy{},
	}
}

func bind(o *Orchestrator, cid, name string) *fakeConn {
	conn := &fakeConn{}
	meta := &domain.Participant{Account: domain.AccountID("acc-" + cid), DisplayName: name}
	o.Registry.BindSignal(core.ConnID(cid), core.NewParticipantSession(meta, conn), nil)
	return conn
}

func TestJoinAutoCreatesRoomAndAnnounces(t *testing.T) {
	o := newOrchestrator()
	aConn := bind(o, "a", "alice")
	bind(o, "b", "bob")

	prior, err := o.Join("a", "r1", "alice")
	require.NoError(t, err)
	assert.Empty(t, prior, "first joiner sees an empty room")

	room, ok := o.Rooms.Get("r1")
	require.True(t, ok, "join auto-creates the room")
	assert.Equal(t, 1, room.MemberCount())

	prior, err = o.Join("b", "r1", "bob")
	require.NoError(t, err)
	require.Len(t, prior, 1)
	assert.Equal(t, core.ConnID("a"), prior[0].ConnID)
	assert.Equal(t, "alice", prior[0].DisplayName)

	joined := typed[protocol.ParticipantJoined](t, aConn, protocol.TypeParticipantJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, core.ConnID("b"), joined[0].ConnID)
	assert.Equal(t, "bob", joined[0].DisplayName)
	assert.True(t, joined[0].Position.IsOrigin(), "a fresh joiner has the zero position")
}

func TestJoinWithoutSession(t *testing.T) {
	o := newOrchestrator()
	_, err := o.Join("ghost", "r1", "ghost")
	assert.ErrorIs(t, err, ErrNoSession)
	_, ok := o.Rooms.Get("r1")
	assert.False(t, ok, "failed join must not leave a room behind")
}

func TestMembershipExactness(t *testing.T) {
	o := newOrchestrator()
	for _, cid := range []string{"a", "b", "c"} {
		bind(o, cid, cid)
		_, err := o.Join(core.ConnID(cid), "r1", cid)
		require.NoError(t, err)
	}
	o.Leave("b")

	room, ok := o.Rooms.Get("r1")
	require.True(t, ok)
	got := map[core.ConnID]bool{}
	for _, m := range room.MembersSnapshot() {
		got[m.ConnID] = true
	}
	assert.Equal(t, map[core.ConnID]bool{"a": true, "c": true}, got)
}

func TestLeaveIsIdempotentAndDeletesEmptyRoom(t *testing.T) {
	o := newOrchestrator()
	bind(o, "a", "alice")

	// Leaving before ever joining is a no-op.
	o.Leave("a")

	_, err := o.Join("a", "r1", "alice")
	require.NoError(t, err)

	o.Leave("a")
	_, ok := o.Rooms.Get("r1")
	assert.False(t, ok, "last leaver deletes the room")

	o.Leave("a") // second leave: still a no-op
}

func TestDisconnectBroadcastsParticipantLeft(t *testing.T) {
	o := newOrchestrator()
	bind(o, "a", "alice")
	bConn := bind(o, "b", "bob")

	_, err := o.Join("a", "r1", "alice")
	require.NoError(t, err)
	_, err = o.Join("b", "r1", "bob")
	require.NoError(t, err)

	o.Disconnect("a")

	left := typed[protocol.ParticipantLeft](t, bConn, protocol.TypeParticipantLeft)
	require.Len(t, left, 1)
	assert.Equal(t, core.ConnID("a"), left[0].ConnID)

	room, ok := o.Rooms.Get("r1")
	require.True(t, ok, "room survives while a member remains")
	assert.Equal(t, 1, room.MemberCount())

	_, ok = o.Registry.GetSession("a")
	assert.False(t, ok, "disconnect drops the connection entry")

	o.Disconnect("b")
	_, ok = o.Rooms.Get("r1")
	assert.False(t, ok, "room gone after the last disconnect")
}

func TestRejoinMovesBetweenRooms(t *testing.T) {
	o := newOrchestrator()
	bind(o, "a", "alice")

	_, err := o.Join("a", "r1", "alice")
	require.NoError(t, err)
	_, err = o.Join("a", "r2", "alice")
	require.NoError(t, err)

	_, ok := o.Rooms.Get("r1")
	assert.False(t, ok, "old room emptied and deleted")

	roomID, _, ok := o.Registry.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r2"), roomID)
}

func TestPositionUpdateBroadcast(t *testing.T) {
	o := newOrchestrator()
	aConn := bind(o, "a", "alice")
	bConn := bind(o, "b", "bob")
	cConn := bind(o, "c", "carol")
	for _, cid := range []core.ConnID{"a", "b", "c"} {
		_, err := o.Join(cid, "r1", string(cid))
		require.NoError(t, err)
	}

	o.UpdatePosition("a", domain.Position{X: 3, Z: 4})

	for _, conn := range []*fakeConn{bConn, cConn} {
		changed := typed[protocol.PositionChanged](t, conn, protocol.TypePositionChanged)
		require.Len(t, changed, 1)
		assert.Equal(t, core.ConnID("a"), changed[0].ConnID)
		assert.Equal(t, domain.Position{X: 3, Z: 4}, changed[0].Position)
	}
	assert.Empty(t, typed[protocol.PositionChanged](t, aConn, protocol.TypePositionChanged),
		"the sender never receives its own update")
}

func TestMuteUpdateBroadcast(t *testing.T) {
	o := newOrchestrator()
	bind(o, "a", "alice")
	bConn := bind(o, "b", "bob")
	_, err := o.Join("a", "r1", "alice")
	require.NoError(t, err)
	_, err = o.Join("b", "r1", "bob")
	require.NoError(t, err)

	o.UpdateMuted("a", true)

	changed := typed[protocol.MuteChanged](t, bConn, protocol.TypeMuteChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, core.ConnID("a"), changed[0].ConnID)
	assert.True(t, changed[0].Muted)
}

func TestUpdatesOutsideRoomAreSilentNoops(t *testing.T) {
	o := newOrchestrator()
	conn := bind(o, "a", "alice")

	o.UpdatePosition("a", domain.Position{X: 1})
	o.UpdateMuted("a", true)
	o.UpdatePosition("never-bound", domain.Position{X: 1})

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Empty(t, conn.frames)
}

func TestForwardDeliversWithSenderIdentity(t *testing.T) {
	o := newOrchestrator()
	bind(o, "a", "alice")
	bConn := bind(o, "b", "bob")

	payload := json.RawMessage(`{"sdp":"v=0..."}`)
	o.Forward("a", "b", protocol.TypeConnectionOffer, payload)

	got := typed[protocol.Signal](t, bConn, protocol.TypeConnectionOffer)
	require.Len(t, got, 1)
	assert.Equal(t, core.ConnID("a"), got[0].Sender)
	assert.JSONEq(t, string(payload), string(got[0].Payload))
}

func TestForwardToAbsentTargetIsSilentlyDropped(t *testing.T) {
	o := newOrchestrator()
	aConn := bind(o, "a", "alice")

	o.Forward("a", "gone", protocol.TypeCandidate, json.RawMessage(`{}`))

	aConn.mu.Lock()
	defer aConn.mu.Unlock()
	assert.Empty(t, aConn.frames, "sender receives no error for an absent target")
}

func TestForwardOrderingPerTarget(t *testing.T) {
	o := newOrchestrator()
	bind(o, "a", "alice")
	bConn := bind(o, "b", "bob")

	for i := 0; i < 10; i++ {
		payload, _ := json.Marshal(map[string]int{"seq": i})
		o.Forward("a", "b", protocol.TypeCandidate, payload)
	}

	got := typed[protocol.Signal](t, bConn, protocol.TypeCandidate)
	require.Len(t, got, 10)
	for i, sig := range got {
		var p struct {
			Seq int `json:"seq"`
		}
		require.NoError(t, json.Unmarshal(sig.Payload, &p))
		assert.Equal(t, i, p.Seq, "per-sender-per-target order must hold")
	}
}

func TestBackpressureKicksSlowMember(t *testing.T) {
	o := newOrchestrator()
	bind(o, "a", "alice")
	bConn := bind(o, "b", "bob")
	_, err := o.Join("a", "r1", "alice")
	require.NoError(t, err)
	_, err = o.Join("b", "r1", "bob")
	require.NoError(t, err)

	bConn.mu.Lock()
	bConn.full = true
	bConn.mu.Unlock()

	o.UpdatePosition("a", domain.Position{X: 1})

	room, ok := o.Rooms.Get("r1")
	require.True(t, ok)
	assert.Equal(t, 1, room.MemberCount(), "the stalled member was kicked")
	_, _, inRoom := o.Registry.RoomOf("b")
	assert.False(t, inRoom)
}

func TestListOthers(t *testing.T) {
	o := newOrchestrator()
	bind(o, "a", "alice")
	bind(o, "b", "bob")
	_, err := o.Join("a", "r1", "alice")
	require.NoError(t, err)
	_, err = o.Join("b", "r1", "bob")
	require.NoError(t, err)

	others := o.ListOthers("a")
	require.Len(t, others, 1)
	assert.Equal(t, core.ConnID("b"), others[0].ConnID)

	assert.Nil(t, o.ListOthers("not-joined"))
}
