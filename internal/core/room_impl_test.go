package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearfield/nearfield/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	full   bool
}

func (f *fakeConn) TrySend(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func newSession(account, name string) (ParticipantSession, *fakeConn) {
	conn := &fakeConn{}
	meta := &domain.Participant{Account: domain.AccountID(account), DisplayName: name}
	return NewParticipantSession(meta, conn), conn
}

func TestAddMemberReturnsPriorSnapshotAndAnnounces(t *testing.T) {
	room := NewRoomService(&domain.Room{ID: "r1"})

	a, aConn := newSession("acc-a", "alice")
	prior := room.AddMember("conn-a", a, Frame(`{"joined":"a"}`))
	assert.Empty(t, prior)
	assert.Equal(t, 1, room.MemberCount())

	b, _ := newSession("acc-b", "bob")
	prior = room.AddMember("conn-b", b, Frame(`{"joined":"b"}`))
	require.Len(t, prior, 1)
	assert.Equal(t, ConnID("conn-a"), prior[0].ConnID)
	assert.Equal(t, "alice", prior[0].DisplayName)
	assert.True(t, prior[0].Position.IsOrigin())

	// The announce went to the prior member only.
	assert.Equal(t, 1, aConn.count())
}

func TestRemoveMemberIdempotent(t *testing.T) {
	room := NewRoomService(&domain.Room{ID: "r1"})
	a, _ := newSession("acc-a", "alice")
	room.AddMember("conn-a", a, nil)

	assert.Equal(t, 0, room.RemoveMember("conn-a", nil))
	assert.Equal(t, 0, room.RemoveMember("conn-a", nil))
	assert.Equal(t, 0, room.RemoveMember("never-joined", nil))
}

func TestRemoveMemberAnnouncesToRemainder(t *testing.T) {
	room := NewRoomService(&domain.Room{ID: "r1"})
	a, aConn := newSession("acc-a", "alice")
	b, bConn := newSession("acc-b", "bob")
	room.AddMember("conn-a", a, nil)
	room.AddMember("conn-b", b, nil)
	aConn.frames, bConn.frames = nil, nil

	remaining := room.RemoveMember("conn-a", Frame(`{"left":"a"}`))
	assert.Equal(t, 1, remaining)
	assert.Equal(t, 1, bConn.count())
	assert.Equal(t, 0, aConn.count(), "the leaver is not notified")
}

func TestSetPositionBroadcastsToOthersOnly(t *testing.T) {
	room := NewRoomService(&domain.Room{ID: "r1"})
	a, aConn := newSession("acc-a", "alice")
	b, bConn := newSession("acc-b", "bob")
	c, cConn := newSession("acc-c", "carol")
	room.AddMember("conn-a", a, nil)
	room.AddMember("conn-b", b, nil)
	room.AddMember("conn-c", c, nil)
	aConn.frames, bConn.frames, cConn.frames = nil, nil, nil

	res, ok := room.SetPosition("conn-a", domain.Position{X: 3, Z: 4}, Frame(`{"moved":"a"}`))
	require.True(t, ok)
	assert.Equal(t, 2, res.SentTo)
	assert.Equal(t, 0, aConn.count(), "sender must not receive its own update")
	assert.Equal(t, 1, bConn.count())
	assert.Equal(t, 1, cConn.count())

	assert.Equal(t, domain.Position{X: 3, Z: 4}, a.Meta().Position)
}

func TestSetPositionForNonMember(t *testing.T) {
	room := NewRoomService(&domain.Room{ID: "r1"})
	_, ok := room.SetPosition("ghost", domain.Position{X: 1}, Frame(`{}`))
	assert.False(t, ok)
}

func TestSetMuted(t *testing.T) {
	room := NewRoomService(&domain.Room{ID: "r1"})
	a, _ := newSession("acc-a", "alice")
	b, bConn := newSession("acc-b", "bob")
	room.AddMember("conn-a", a, nil)
	room.AddMember("conn-b", b, nil)
	bConn.frames = nil

	res, ok := room.SetMuted("conn-a", true, Frame(`{"muted":"a"}`))
	require.True(t, ok)
	assert.Equal(t, 1, res.SentTo)
	assert.True(t, a.Meta().Muted)
	assert.Equal(t, 1, bConn.count())
}

func TestFanOutReportsBackpressure(t *testing.T) {
	room := NewRoomService(&domain.Room{ID: "r1"})
	a, _ := newSession("acc-a", "alice")
	b, bConn := newSession("acc-b", "bob")
	room.AddMember("conn-a", a, nil)
	room.AddMember("conn-b", b, nil)
	bConn.full = true

	res, ok := room.SetMuted("conn-a", true, Frame(`{}`))
	require.True(t, ok)
	assert.Equal(t, 0, res.SentTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, ConnID("conn-b"), res.Dropped[0])
}
