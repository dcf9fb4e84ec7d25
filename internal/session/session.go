package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/domain"
	"github.com/jamroom/jamroom/internal/media"
	"github.com/jamroom/jamroom/internal/peer"
	"github.com/jamroom/jamroom/internal/playback"
)

var ErrNotJoined = errors.New("not joined to a room")

// Events are the application-facing callbacks. Any of them may be nil.
type Events struct {
	OnRemoteStream func(domain.UserID, *peer.RemoteStream)
	OnMemberJoined func(domain.User)
	OnMemberLeft   func(domain.User)
	OnMemberMedia  func(user domain.UserID, audio, video bool)
	OnChat         func(user domain.User, text string)
	OnQueueUpdated func()
}

// RoomSession ties one signaling connection to the peer mesh and the playback
// controller for a single room. Collaborators are injected so tests can swap
// the connection factory and tolerances.
type RoomSession struct {
	client  *Client
	local   *media.LocalStream // nil when capture was declined
	newConn peer.ConnFactory
	tol     playback.Tolerances
	events  Events

	mu       sync.Mutex
	self     domain.User
	roomID   domain.RoomID
	hostID   domain.UserID
	peers    *peer.Manager
	playback *playback.Controller
	ctx      context.Context
}

func NewRoomSession(client *Client, local *media.LocalStream, newConn peer.ConnFactory, tol playback.Tolerances, events Events) *RoomSession {
	s := &RoomSession{
		client:  client,
		local:   local,
		newConn: newConn,
		tol:     tol,
		events:  events,
	}
	client.OnFrame(s.route)
	return s
}

// Connect starts the read loop and resolves the server-assigned identity.
func (s *RoomSession) Connect(ctx context.Context) error {
	go s.client.Run(ctx)

	data, err := s.client.Request(ctx, map[string]any{"type": "whoami"}, "whoami")
	if err != nil {
		return err
	}
	var resp struct {
		ID       domain.UserID `json:"id"`
		Username string        `json:"username"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}
	s.mu.Lock()
	s.self = domain.User{ID: resp.ID, Username: resp.Username}
	s.ctx = ctx
	s.mu.Unlock()
	return nil
}

func (s *RoomSession) Self() domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// CreateRoom registers a room on the server. The caller becomes its host but
// still joins like everyone else.
func (s *RoomSession) CreateRoom(ctx context.Context, name string) (domain.RoomID, error) {
	data, err := s.client.Request(ctx, struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}{"create_room", name}, "room_created")
	if err != nil {
		return "", err
	}
	var resp struct {
		Room domain.RoomID `json:"room"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", err
	}
	return resp.Room, nil
}

// Join enters a room: the peer manager and playback controller come alive
// here. The joiner never initiates links; existing members open links toward
// it when their member_joined arrives.
func (s *RoomSession) Join(ctx context.Context, roomID domain.RoomID, name string) error {
	data, err := s.client.Request(ctx, struct {
		Type string `json:"type"`
		Room string `json:"room"`
		Name string `json:"name,omitempty"`
	}{"join", string(roomID), name}, "room_state")
	if err != nil {
		return err
	}
	var resp struct {
		Room     domain.RoomID `json:"room"`
		HostID   domain.UserID `json:"host_id"`
		RoomName string        `json:"room_name"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}

	s.mu.Lock()
	s.roomID = resp.Room
	s.hostID = resp.HostID
	host := resp.HostID == s.self.ID

	mgr := peer.NewManager(&wsSignaler{c: s.client}, s.newConn, s.local)
	if s.events.OnRemoteStream != nil {
		mgr.OnRemoteStream(s.events.OnRemoteStream)
	}
	s.peers = mgr

	ctl, err := playback.NewController(resp.Room, s.self.ID, host,
		&wsRecordStore{c: s.client}, &wsQueueSource{c: s.client}, s.tol)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.playback = ctl
	s.mu.Unlock()

	log.Info().Str("module", "session").Str("room", string(resp.Room)).Bool("host", host).Msg("joined")
	return nil
}

// AttachPlayer hands the local player to the playback controller once the
// embed is ready.
func (s *RoomSession) AttachPlayer(ctx context.Context, p playback.Player) error {
	s.mu.Lock()
	ctl := s.playback
	s.mu.Unlock()
	if ctl == nil {
		return ErrNotJoined
	}
	return ctl.AttachPlayer(ctx, p)
}

// Playback returns the current room's controller, nil before Join.
func (s *RoomSession) Playback() *playback.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playback
}

// Peers returns the current room's link manager, nil before Join.
func (s *RoomSession) Peers() *peer.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers
}

// Leave exits the room and tears everything down; the socket stays usable.
func (s *RoomSession) Leave(ctx context.Context) error {
	s.mu.Lock()
	mgr := s.peers
	ctl := s.playback
	s.peers = nil
	s.playback = nil
	s.roomID = ""
	s.hostID = ""
	s.mu.Unlock()

	if ctl != nil {
		ctl.Detach()
	}
	if mgr != nil {
		mgr.TeardownAll()
	}
	_, err := s.client.Request(ctx, map[string]any{"type": "leave"}, "left")
	return err
}

// Close shuts the signaling connection and all peer links.
func (s *RoomSession) Close() {
	s.mu.Lock()
	mgr := s.peers
	ctl := s.playback
	s.mu.Unlock()
	if ctl != nil {
		ctl.Detach()
	}
	if mgr != nil {
		mgr.TeardownAll()
	}
	s.client.Close()
}

// SetAudioEnabled flips the local audio track and tells the room.
func (s *RoomSession) SetAudioEnabled(on bool) error {
	if s.local != nil {
		s.local.SetAudioEnabled(on)
	}
	return s.sendMediaState()
}

// SetVideoEnabled flips the local video track and tells the room.
func (s *RoomSession) SetVideoEnabled(on bool) error {
	if s.local != nil {
		s.local.SetVideoEnabled(on)
	}
	return s.sendMediaState()
}

func (s *RoomSession) sendMediaState() error {
	audio, video := false, false
	if s.local != nil {
		if t := s.local.AudioTrack(); t != nil {
			audio = t.Enabled()
		}
		if t := s.local.VideoTrack(); t != nil {
			video = t.Enabled()
		}
	}
	return s.client.Send(struct {
		Type         string `json:"type"`
		AudioEnabled bool   `json:"audio_enabled"`
		VideoEnabled bool   `json:"video_enabled"`
	}{"media_state", audio, video})
}

// QueueAdd appends an item to the room's queue.
func (s *RoomSession) QueueAdd(ctx context.Context, itemID, title string) (*domain.QueueEntry, error) {
	data, err := s.client.Request(ctx, struct {
		Type   string `json:"type"`
		ItemID string `json:"item_id"`
		Title  string `json:"title"`
	}{"queue_add", itemID, title}, "queue_added")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Entry *domain.QueueEntry `json:"entry"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return resp.Entry, nil
}

// QueueList fetches the full queue, playing entry first.
func (s *RoomSession) QueueList(ctx context.Context) ([]domain.QueueEntry, error) {
	data, err := s.client.Request(ctx, map[string]any{"type": "queue_list"}, "queue")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Entries []domain.QueueEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// QueueRemove deletes an entry by id.
func (s *RoomSession) QueueRemove(entryID string) error {
	return s.client.Send(struct {
		Type    string `json:"type"`
		EntryID string `json:"entry_id"`
	}{"queue_remove", entryID})
}

// SendChat broadcasts a chat line to the room.
func (s *RoomSession) SendChat(text string) error {
	return s.client.Send(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{"chat", text})
}

// route dispatches unsolicited frames: negotiation relays, membership and
// record-change events.
func (s *RoomSession) route(frameType string, data json.RawMessage) {
	switch frameType {
	case domain.SignalOffer, domain.SignalAnswer, domain.SignalCandidate:
		s.routeSignal(data)
	case "member_joined":
		s.routeMemberJoined(data)
	case "member_left":
		s.routeMemberLeft(data)
	case "member_media":
		s.routeMemberMedia(data)
	case "player_updated":
		s.routePlayerUpdated(data)
	case "queue_updated":
		if s.events.OnQueueUpdated != nil {
			s.events.OnQueueUpdated()
		}
	case "chat":
		s.routeChat(data)
	case "error":
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		log.Warn().Str("module", "session").Str("error", e.Error).Msg("server error frame")
	}
}

// routeSignal handles a relayed negotiation message. Everything is broadcast
// on the room channel, so frames aimed at somebody else are dropped here.
func (s *RoomSession) routeSignal(data json.RawMessage) {
	var msg domain.SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("bad signal frame")
		return
	}
	s.mu.Lock()
	mgr := s.peers
	self := s.self.ID
	ctx := s.ctx
	s.mu.Unlock()
	if mgr == nil || msg.TargetUserID != self {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	switch msg.Type {
	case domain.SignalOffer:
		if msg.SDP != nil {
			err = mgr.HandleRemoteOffer(ctx, msg.FromUserID, *msg.SDP)
		}
	case domain.SignalAnswer:
		if msg.SDP != nil {
			err = mgr.HandleRemoteAnswer(msg.FromUserID, *msg.SDP)
		}
	case domain.SignalCandidate:
		if msg.Candidate != nil {
			err = mgr.HandleRemoteCandidate(msg.FromUserID, *msg.Candidate)
		}
	}
	if err != nil {
		log.Error().Err(err).Str("module", "session").
			Str("from", string(msg.FromUserID)).Str("kind", msg.Type).Msg("negotiation failed")
	}
}

// routeMemberJoined opens an initiator-side link toward the newcomer. Only
// already-present members receive this frame, so the newcomer always answers.
func (s *RoomSession) routeMemberJoined(data json.RawMessage) {
	var p struct {
		User domain.User `json:"user"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	mgr := s.peers
	ctx := s.ctx
	s.mu.Unlock()
	if mgr != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		mgr.HandlePresenceJoin(ctx, []domain.UserID{p.User.ID})
	}
	if s.events.OnMemberJoined != nil {
		s.events.OnMemberJoined(p.User)
	}
}

func (s *RoomSession) routeMemberLeft(data json.RawMessage) {
	var p struct {
		User domain.User `json:"user"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	mgr := s.peers
	s.mu.Unlock()
	if mgr != nil {
		mgr.HandlePresenceLeave([]domain.UserID{p.User.ID})
	}
	if s.events.OnMemberLeft != nil {
		s.events.OnMemberLeft(p.User)
	}
}

func (s *RoomSession) routeMemberMedia(data json.RawMessage) {
	if s.events.OnMemberMedia == nil {
		return
	}
	var p struct {
		UserID       domain.UserID `json:"user_id"`
		AudioEnabled bool          `json:"audio_enabled"`
		VideoEnabled bool          `json:"video_enabled"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.events.OnMemberMedia(p.UserID, p.AudioEnabled, p.VideoEnabled)
}

func (s *RoomSession) routePlayerUpdated(data json.RawMessage) {
	var p struct {
		Record *domain.PlaybackRecord `json:"record"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Record == nil {
		return
	}
	s.mu.Lock()
	ctl := s.playback
	s.mu.Unlock()
	if ctl != nil {
		ctl.OnExternalUpdate(*p.Record)
	}
}

func (s *RoomSession) routeChat(data json.RawMessage) {
	if s.events.OnChat == nil {
		return
	}
	var p struct {
		User domain.User `json:"user"`
		Text string      `json:"text"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.events.OnChat(p.User, p.Text)
}
