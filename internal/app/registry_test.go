package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/domain"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func newTestSession(name string) core.ParticipantSession {
	return core.NewParticipantSession(&domain.Participant{DisplayName: name}, nopConn{})
}

func TestRegistryBindAndLookup(t *testing.T) {
	r := NewRegistry()
	sess := newTestSession("alice")
	r.BindSignal("a", sess, nil)

	got, ok := r.GetSession("a")
	require.True(t, ok)
	assert.Equal(t, "alice", got.Meta().DisplayName)

	_, ok = r.GetSession("b")
	assert.False(t, ok)
}

func TestRegistryRoomAssociation(t *testing.T) {
	r := NewRegistry()
	r.BindSignal("a", newTestSession("alice"), nil)

	_, _, ok := r.RoomOf("a")
	assert.False(t, ok, "no room until joined")

	assert.True(t, r.UpdateRoom("a", "r1"))
	roomID, sess, ok := r.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r1"), roomID)
	assert.NotNil(t, sess)

	r.ClearRoom("a")
	_, _, ok = r.RoomOf("a")
	assert.False(t, ok)

	assert.False(t, r.UpdateRoom("unbound", "r1"))
}

func TestRegistryUnbind(t *testing.T) {
	r := NewRegistry()
	r.BindSignal("a", newTestSession("alice"), nil)
	r.Unbind("a")
	_, ok := r.GetSession("a")
	assert.False(t, ok)

	// Unbind of an absent connection is a no-op.
	r.Unbind("a")
}

func TestRegistryUnbindReleasesContext(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	r.BindSignal("a", newTestSession("alice"), cancel)

	r.Unbind("a")
	assert.Error(t, ctx.Err(), "unbind must cancel the connection context")
}

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	r.BindSignal("a", newTestSession("alice"), cancel)

	assert.True(t, r.Cancel("a"))
	assert.Error(t, ctx.Err(), "bound cancel must fire")

	assert.False(t, r.Cancel("never-bound"))
}

func TestRoomManagerLifecycle(t *testing.T) {
	m := NewRoomManager()

	_, ok := m.Get("r1")
	assert.False(t, ok)

	room := m.GetOrCreate("r1")
	require.NotNil(t, room)
	assert.Same(t, room, m.GetOrCreate("r1"), "GetOrCreate is idempotent")

	infos := m.List()
	require.Len(t, infos, 1)
	assert.Equal(t, domain.RoomID("r1"), infos[0].ID)
	assert.Equal(t, 0, infos[0].MemberCount)

	m.Remove("r1")
	_, ok = m.Get("r1")
	assert.False(t, ok)

	m.Remove("r1") // second remove is a no-op
}
