package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/domain"
	"github.com/jamroom/jamroom/internal/store"
)

// watchFeed consumes the room's change feed and fans every event out to the
// room channel, so clients see record updates without polling.
func (o *Orchestrator) watchFeed(ctx context.Context, roomID domain.RoomID) {
	o.mu.Lock()
	if _, ok := o.watchers[roomID]; ok {
		o.mu.Unlock()
		return
	}
	events, stop := o.State.Subscribe(ctx, roomID)
	o.watchers[roomID] = stop
	o.mu.Unlock()

	go func() {
		for ev := range events {
			switch ev.Type {
			case store.EventPlayerUpdated:
				o.BroadcastRoom(roomID, struct {
					Type   string                 `json:"type"`
					Record *domain.PlaybackRecord `json:"record"`
				}{store.EventPlayerUpdated, ev.Record})
			case store.EventQueueUpdated:
				o.BroadcastRoom(roomID, struct {
					Type string `json:"type"`
				}{store.EventQueueUpdated})
			default:
				log.Warn().Str("module", "orch").Str("type", ev.Type).Msg("unknown feed event")
			}
		}
		log.Info().Str("module", "orch").Str("room", string(roomID)).Msg("feed watcher stopped")
	}()
}

func (o *Orchestrator) stopFeed(roomID domain.RoomID) {
	o.mu.Lock()
	stop, ok := o.watchers[roomID]
	if ok {
		delete(o.watchers, roomID)
	}
	o.mu.Unlock()
	if ok {
		stop()
	}
}
