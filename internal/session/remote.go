package session

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/jamroom/jamroom/internal/domain"
	"github.com/jamroom/jamroom/internal/playback"
)

// wsSignaler relays negotiation messages on the room channel. The server
// stamps the sender id, so only type, target and payload go on the wire.
type wsSignaler struct {
	c *Client
}

func (s *wsSignaler) SendOffer(to domain.UserID, sdp webrtc.SessionDescription) error {
	return s.c.Send(domain.SignalMessage{
		Type:         domain.SignalOffer,
		TargetUserID: to,
		SDP:          &sdp,
	})
}

func (s *wsSignaler) SendAnswer(to domain.UserID, sdp webrtc.SessionDescription) error {
	return s.c.Send(domain.SignalMessage{
		Type:         domain.SignalAnswer,
		TargetUserID: to,
		SDP:          &sdp,
	})
}

func (s *wsSignaler) SendCandidate(to domain.UserID, cand webrtc.ICECandidateInit) error {
	return s.c.Send(domain.SignalMessage{
		Type:         domain.SignalCandidate,
		TargetUserID: to,
		Candidate:    &cand,
	})
}

// wsRecordStore implements playback.RecordStore over the room channel.
type wsRecordStore struct {
	c *Client
}

func (s *wsRecordStore) Fetch(ctx context.Context, _ domain.RoomID) (*domain.PlaybackRecord, error) {
	data, err := s.c.Request(ctx, map[string]any{"type": "player_get"}, "player_state")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Record *domain.PlaybackRecord `json:"record"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if resp.Record == nil {
		return nil, playback.ErrRecordNotFound
	}
	return resp.Record, nil
}

// Upsert is fire-and-forget: the server only answers on failure, and that
// failure surfaces on the unsolicited frame path.
func (s *wsRecordStore) Upsert(_ context.Context, rec *domain.PlaybackRecord) error {
	return s.c.Send(struct {
		Type   string                 `json:"type"`
		Record *domain.PlaybackRecord `json:"record"`
	}{"player_set", rec})
}

// wsQueueSource implements playback.QueueSource over the room channel.
type wsQueueSource struct {
	c *Client
}

func (s *wsQueueSource) Head(ctx context.Context, _ domain.RoomID) (*domain.QueueEntry, error) {
	data, err := s.c.Request(ctx, map[string]any{"type": "queue_list"}, "queue")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Entries []domain.QueueEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if len(resp.Entries) == 0 {
		return nil, nil
	}
	return &resp.Entries[0], nil
}

func (s *wsQueueSource) Advance(ctx context.Context, _ domain.RoomID) (*domain.QueueEntry, error) {
	data, err := s.c.Request(ctx, map[string]any{"type": "queue_advance"}, "queue_head")
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
