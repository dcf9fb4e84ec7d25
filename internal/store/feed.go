package store

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/domain"
)

const (
	EventPlayerUpdated = "player_updated"
	EventQueueUpdated  = "queue_updated"
)

// Event is one change-feed notification for a room.
type Event struct {
	Type   string                 `json:"type"`
	Record *domain.PlaybackRecord `json:"record,omitempty"`
}

// Subscribe opens the change feed for a room. The returned channel closes
// when ctx is canceled or the returned stop function is called.
func (s *Store) Subscribe(ctx context.Context, roomID domain.RoomID) (<-chan Event, func()) {
	sub := s.rdb.Subscribe(ctx, eventsChannel(roomID))
	out := make(chan Event, 16)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Error().Err(err).Str("module", "store").Str("room", string(roomID)).Msg("bad feed payload")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			default:
				// Slow consumer; the next record supersedes anyway.
				log.Warn().Str("module", "store").Str("room", string(roomID)).Msg("feed consumer lagging, dropping event")
			}
		}
	}()

	stop := func() { _ = sub.Close() }
	return out, stop
}
