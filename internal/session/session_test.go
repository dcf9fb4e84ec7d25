package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
	"github.com/jamroom/jamroom/internal/peer"
	"github.com/jamroom/jamroom/internal/playback"
)

type recordedFrame struct {
	Type string
	Data json.RawMessage
}

// recordingServer captures every inbound frame and answers the ones it has a
// canned reply for.
type recordingServer struct {
	t       *testing.T
	replies map[string]any
	frames  chan recordedFrame

	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *recordingServer) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(s.t, json.Unmarshal(data, &env))
		select {
		case s.frames <- recordedFrame{Type: env.Type, Data: data}:
		default:
		}
		s.mu.Lock()
		reply, ok := s.replies[env.Type]
		s.mu.Unlock()
		if ok {
			require.NoError(s.t, conn.WriteJSON(reply))
		}
	}
}

func (s *recordingServer) push(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotNil(s.t, s.conn)
	require.NoError(s.t, s.conn.WriteJSON(v))
}

func (s *recordingServer) await(t *testing.T, frameType string) recordedFrame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-s.frames:
			if f.Type == frameType {
				return f
			}
		case <-deadline:
			t.Fatalf("frame %q never arrived", frameType)
		}
	}
}

type sessionConn struct {
	mu     sync.Mutex
	closed bool
}

func (f *sessionConn) Start(context.Context) error { return nil }
func (f *sessionConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}
func (f *sessionConn) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
func (f *sessionConn) CreateOffer() (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o"}, nil
}
func (f *sessionConn) ApplyOfferCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a"}, nil
}
func (f *sessionConn) ApplyAnswer(webrtc.SessionDescription) error   { return nil }
func (f *sessionConn) AddICECandidate(webrtc.ICECandidateInit) error { return nil }
func (f *sessionConn) OnICECandidate(func(webrtc.ICECandidateInit))  {}
func (f *sessionConn) OnTrack(func(track *webrtc.TrackRemote))       {}
func (f *sessionConn) OnDisconnected(func())                         {}
func (f *sessionConn) AddLocalTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return nil, nil
}

type sessionPlayer struct {
	mu      sync.Mutex
	pos     float64
	playing bool
	loaded  string
}

func (p *sessionPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}
func (p *sessionPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}
func (p *sessionPlayer) Seek(pos float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = pos
}
func (p *sessionPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
}
func (p *sessionPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}
func (p *sessionPlayer) Load(itemID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = itemID
	p.pos = 0
}

func startSession(t *testing.T, replies map[string]any, events Events) (*recordingServer, *RoomSession) {
	t.Helper()
	srv := &recordingServer{t: t, replies: replies, frames: make(chan recordedFrame, 64)}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	c, err := Dial(context.Background(), url)
	require.NoError(t, err)

	var factory peer.ConnFactory = func(domain.UserID) (core.MediaConnection, error) {
		return &sessionConn{}, nil
	}
	s := NewRoomSession(c, nil, factory, playback.DefaultTolerances(), events)
	t.Cleanup(s.Close)
	return srv, s
}

func joinedReplies(selfID, hostID string) map[string]any {
	return map[string]any{
		"whoami": map[string]any{"type": "whoami", "id": selfID, "username": "guest"},
		"join": map[string]any{
			"type": "room_state", "room": "r-1", "room_name": "listening party",
			"host_id": hostID, "members": []any{}, "count": 1,
		},
		"player_get": map[string]any{"type": "player_state", "record": nil},
		"queue_list": map[string]any{"type": "queue", "entries": []any{}},
	}
}

func TestJoinWiresPeerMeshAndPlayback(t *testing.T) {
	srv, s := startSession(t, joinedReplies("me", "me"), Events{})
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx))
	assert.Equal(t, domain.UserID("me"), s.Self().ID)

	require.NoError(t, s.Join(ctx, "r-1", ""))
	require.NotNil(t, s.Peers())
	require.NotNil(t, s.Playback())
	assert.True(t, s.Playback().IsHost())

	// The host initializes the missing record on attach.
	require.NoError(t, s.AttachPlayer(ctx, &sessionPlayer{}))
	f := srv.await(t, "player_set")
	var set struct {
		Record domain.PlaybackRecord `json:"record"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &set))
	assert.False(t, set.Record.Playing)
	assert.Zero(t, set.Record.Position)
}

func TestMemberJoinedTriggersOffer(t *testing.T) {
	joined := make(chan domain.User, 1)
	srv, s := startSession(t, joinedReplies("me", "other-host"), Events{
		OnMemberJoined: func(u domain.User) { joined <- u },
	})
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Join(ctx, "r-1", ""))

	srv.push(map[string]any{"type": "member_joined", "user": map[string]any{"id": "bob", "username": "bob"}})

	f := srv.await(t, "offer")
	var msg domain.SignalMessage
	require.NoError(t, json.Unmarshal(f.Data, &msg))
	assert.Equal(t, domain.UserID("bob"), msg.TargetUserID)
	require.NotNil(t, msg.SDP)

	select {
	case u := <-joined:
		assert.Equal(t, domain.UserID("bob"), u.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("join callback never fired")
	}

	assert.Eventually(t, func() bool { return s.Peers().LinkCount() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestInboundOfferIsAnsweredWhenTargeted(t *testing.T) {
	srv, s := startSession(t, joinedReplies("me", "other-host"), Events{})
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Join(ctx, "r-1", ""))

	// Aimed at somebody else: must be dropped.
	srv.push(domain.SignalMessage{
		Type: domain.SignalOffer, FromUserID: "alice", TargetUserID: "carol",
		SDP: &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o"},
	})
	// Aimed at us: answered.
	srv.push(domain.SignalMessage{
		Type: domain.SignalOffer, FromUserID: "alice", TargetUserID: "me",
		SDP: &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o"},
	})

	f := srv.await(t, "answer")
	var msg domain.SignalMessage
	require.NoError(t, json.Unmarshal(f.Data, &msg))
	assert.Equal(t, domain.UserID("alice"), msg.TargetUserID)

	assert.Equal(t, 1, s.Peers().LinkCount(), "only the targeted offer creates a link")
}

func TestMemberLeftTearsDownLink(t *testing.T) {
	srv, s := startSession(t, joinedReplies("me", "other-host"), Events{})
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Join(ctx, "r-1", ""))

	srv.push(map[string]any{"type": "member_joined", "user": map[string]any{"id": "bob", "username": "bob"}})
	srv.await(t, "offer")

	srv.push(map[string]any{"type": "member_left", "user": map[string]any{"id": "bob", "username": "bob"}})

	assert.Eventually(t, func() bool { return s.Peers().LinkCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestPlayerUpdatedReachesController(t *testing.T) {
	srv, s := startSession(t, joinedReplies("me", "other-host"), Events{})
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Join(ctx, "r-1", ""))

	p := &sessionPlayer{}
	require.NoError(t, s.AttachPlayer(ctx, p))

	srv.push(map[string]any{
		"type": "player_updated",
		"record": map[string]any{
			"room_id": "r-1", "current_item_id": "song-9",
			"playing": true, "position": 30.0,
			"updated_by": "other-host", "updated_at": 123,
		},
	})

	assert.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.playing && p.loaded == "song-9"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLeaveDetachesEverything(t *testing.T) {
	replies := joinedReplies("me", "other-host")
	replies["leave"] = map[string]any{"type": "left"}
	srv, s := startSession(t, replies, Events{})
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Join(ctx, "r-1", ""))

	srv.push(map[string]any{"type": "member_joined", "user": map[string]any{"id": "bob", "username": "bob"}})
	srv.await(t, "offer")

	require.NoError(t, s.Leave(ctx))
	assert.Nil(t, s.Peers())
	assert.Nil(t, s.Playback())
}
