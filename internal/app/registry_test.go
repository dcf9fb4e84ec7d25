package app

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
)

func TestGetOrCreateUserIsStable(t *testing.T) {
	r := NewRegistry()

	u1 := r.GetOrCreateUser("sid-1")
	u2 := r.GetOrCreateUser("sid-1")

	assert.Same(t, u1, u2)
	assert.Equal(t, "guest", u1.Username)
	assert.Equal(t, domain.UserID("sid-1"), u1.ID)
}

func TestUpdateUsernameValidates(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreateUser("sid-1")

	require.NoError(t, r.UpdateUsername("sid-1", "alice"))
	assert.Equal(t, "alice", r.GetOrCreateUser("sid-1").Username)

	assert.Error(t, r.UpdateUsername("sid-1", ""))
	assert.Error(t, r.UpdateUsername("sid-1", strings.Repeat("x", domain.MaxUsernameLen+1)))
	assert.Error(t, r.UpdateUsername("unknown-sid", "bob"))
}

func TestRoomAssociationLifecycle(t *testing.T) {
	r := NewRegistry()
	user := r.GetOrCreateUser("sid-1")
	sess := core.NewMemberSession(domain.NewParticipant(user))
	r.BindSignal("sid-1", sess, nil)

	_, _, ok := r.RoomOf("sid-1")
	assert.False(t, ok, "no room before UpdateRoom")

	require.True(t, r.UpdateRoom("sid-1", "room-1"))
	roomID, got, ok := r.RoomOf("sid-1")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("room-1"), roomID)
	assert.Equal(t, sess, got)

	r.RemoveRoom("sid-1")
	_, _, ok = r.RoomOf("sid-1")
	assert.False(t, ok)

	assert.False(t, r.UpdateRoom("ghost", "room-1"))
}

func TestMembersOfRoom(t *testing.T) {
	r := NewRegistry()
	for _, sid := range []core.SessionID{"a", "b", "c"} {
		u := r.GetOrCreateUser(sid)
		r.BindSignal(sid, core.NewMemberSession(domain.NewParticipant(u)), nil)
	}
	r.UpdateRoom("a", "room-1")
	r.UpdateRoom("b", "room-1")
	r.UpdateRoom("c", "room-2")

	members := r.MembersOfRoom("room-1")
	assert.Len(t, members, 2)
}

func TestUpdateMediaFlags(t *testing.T) {
	r := NewRegistry()
	u := r.GetOrCreateUser("sid-1")
	sess := core.NewMemberSession(domain.NewParticipant(u))
	r.BindSignal("sid-1", sess, nil)

	require.True(t, r.UpdateMediaFlags("sid-1", true, false))
	audio, video := sess.Meta().MediaFlags()
	assert.True(t, audio)
	assert.False(t, video)

	assert.False(t, r.UpdateMediaFlags("ghost", true, true))
}

func TestMediaFlagsSafeUnderConcurrentSnapshots(t *testing.T) {
	r := NewRegistry()
	u := r.GetOrCreateUser("sid-1")
	sess := core.NewMemberSession(domain.NewParticipant(u))
	r.BindSignal("sid-1", sess, nil)

	room := core.NewRoomService(&domain.Room{ID: "room-1", Name: "party", HostID: u.ID})
	room.AddMember("sid-1", sess)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			r.UpdateMediaFlags("sid-1", i%2 == 0, i%3 == 0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			room.MembersSnapshot()
		}
	}()
	wg.Wait()

	members := room.MembersSnapshot()
	require.Len(t, members, 1)
	assert.Equal(t, u.ID, members[0].ID)
}

func TestCancelFiresSessionContext(t *testing.T) {
	r := NewRegistry()
	u := r.GetOrCreateUser("sid-1")
	ctx, cancel := context.WithCancel(context.Background())
	r.BindSignal("sid-1", core.NewMemberSession(domain.NewParticipant(u)), cancel)

	require.True(t, r.Cancel("sid-1"))
	select {
	case <-ctx.Done():
	default:
		t.Fatal("cancel must fire the bound context")
	}

	r.Unbind("sid-1")
	assert.False(t, r.Cancel("sid-1"))
}
