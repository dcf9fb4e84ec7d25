package orch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamroom/jamroom/internal/app"
	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
	"github.com/jamroom/jamroom/internal/playback"
	"github.com/jamroom/jamroom/internal/store"
)

type stubConn struct {
	mu     sync.Mutex
	fail   bool
	frames []core.Frame
}

func (s *stubConn) TrySend(data core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("send buffer full")
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *stubConn) Close() {}

func (s *stubConn) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// countingRooms counts StopRoom calls on top of the real factory.
type countingRooms struct {
	core.RoomFactory
	mu    sync.Mutex
	stops int
}

func (c *countingRooms) StopRoom(id domain.RoomID) {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
	c.RoomFactory.StopRoom(id)
}

func (c *countingRooms) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

type fakeState struct {
	mu      sync.Mutex
	deletes int
}

func (s *fakeState) Fetch(context.Context, domain.RoomID) (*domain.PlaybackRecord, error) {
	return nil, playback.ErrRecordNotFound
}

func (s *fakeState) Upsert(context.Context, *domain.PlaybackRecord) error { return nil }
func (s *fakeState) Add(context.Context, *domain.QueueEntry) error        { return nil }
func (s *fakeState) Remove(context.Context, domain.RoomID, string) error  { return nil }

func (s *fakeState) List(context.Context, domain.RoomID) ([]domain.QueueEntry, error) {
	return nil, nil
}

func (s *fakeState) Head(context.Context, domain.RoomID) (*domain.QueueEntry, error) {
	return nil, nil
}

func (s *fakeState) Advance(context.Context, domain.RoomID) (*domain.QueueEntry, error) {
	return nil, nil
}

func (s *fakeState) Subscribe(context.Context, domain.RoomID) (<-chan store.Event, func()) {
	ch := make(chan store.Event)
	close(ch)
	return ch, func() {}
}

func (s *fakeState) DeleteRoomState(context.Context, domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	return nil
}

func (s *fakeState) deleteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

func newTestOrch() (*Orchestrator, *countingRooms, *fakeState) {
	rooms := &countingRooms{RoomFactory: app.NewRoomManager()}
	state := &fakeState{}
	return New(app.NewRegistry(), rooms, app.SimplePolicy{}, state), rooms, state
}

func bindMember(o *Orchestrator, sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	u := o.Registry.GetOrCreateUser(sid)
	sess := core.NewMemberSession(domain.NewParticipant(u)).UpdateSignal(conn)
	o.Registry.BindSignal(sid, sess, cancel)
}

func TestRelayKicksAndCancelsSlowMember(t *testing.T) {
	o, _, _ := newTestOrch()
	room := o.CreateRoom(context.Background(), "party", "alice")
	roomID := room.Room().ID

	sender := &stubConn{}
	bindMember(o, "sid-alice", sender, nil)
	require.NoError(t, o.Join("sid-alice", roomID))

	ctx, cancel := context.WithCancel(context.Background())
	slow := &stubConn{fail: true}
	bindMember(o, "sid-bob", slow, cancel)
	require.NoError(t, o.Join("sid-bob", roomID))

	o.BroadcastFrom("sid-alice", map[string]string{"type": "chat", "text": "hi"})

	_, _, ok := o.Registry.RoomOf("sid-bob")
	assert.False(t, ok, "member that cannot keep up must leave the room")
	assert.Equal(t, 1, room.MemberCount())
	select {
	case <-ctx.Done():
	default:
		t.Fatal("kicked member's session context must be canceled")
	}

	_, _, ok = o.Registry.RoomOf("sid-alice")
	assert.True(t, ok, "sender stays in the room")
	assert.Zero(t, sender.sent(), "sender never receives its own frame")
}

func TestBroadcastRoomReachesEveryMember(t *testing.T) {
	o, _, _ := newTestOrch()
	room := o.CreateRoom(context.Background(), "party", "alice")
	roomID := room.Room().ID

	a, b := &stubConn{}, &stubConn{}
	bindMember(o, "sid-a", a, nil)
	bindMember(o, "sid-b", b, nil)
	require.NoError(t, o.Join("sid-a", roomID))
	require.NoError(t, o.Join("sid-b", roomID))

	o.BroadcastRoom(roomID, map[string]string{"type": "queue_updated"})

	assert.Equal(t, 1, a.sent())
	assert.Equal(t, 1, b.sent())
	assert.Equal(t, 2, room.MemberCount())
}

func TestEmptyRoomEvictionRunsCleanupOnce(t *testing.T) {
	o, rooms, state := newTestOrch()
	room := o.CreateRoom(context.Background(), "party", "alice")
	roomID := room.Room().ID

	bindMember(o, "sid-alice", &stubConn{}, nil)
	require.NoError(t, o.Join("sid-alice", roomID))

	// Last member out empties the room and triggers eviction exactly once.
	o.KickBySID("sid-alice")

	assert.Equal(t, 1, rooms.stopCount())
	assert.Equal(t, 1, state.deleteCount())
	_, ok := o.Rooms.Get(roomID)
	assert.False(t, ok)
}

func TestEvictRoomKicksEveryMember(t *testing.T) {
	o, rooms, state := newTestOrch()
	room := o.CreateRoom(context.Background(), "party", "alice")
	roomID := room.Room().ID

	bindMember(o, "sid-a", &stubConn{}, nil)
	bindMember(o, "sid-b", &stubConn{}, nil)
	require.NoError(t, o.Join("sid-a", roomID))
	require.NoError(t, o.Join("sid-b", roomID))

	o.EvictRoom(context.Background(), roomID)

	for _, sid := range []core.SessionID{"sid-a", "sid-b"} {
		_, _, ok := o.Registry.RoomOf(sid)
		assert.False(t, ok, "member %s must be out after eviction", sid)
	}
	assert.Equal(t, 1, rooms.stopCount())
	assert.Equal(t, 1, state.deleteCount())
}
