package orch

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/app"
	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
	"github.com/jamroom/jamroom/internal/store"
)

// StateStore is the shared room state behind the orchestrator: playback
// record, song queue and the per-room change feed.
type StateStore interface {
	Fetch(ctx context.Context, roomID domain.RoomID) (*domain.PlaybackRecord, error)
	Upsert(ctx context.Context, rec *domain.PlaybackRecord) error

	Add(ctx context.Context, entry *domain.QueueEntry) error
	Remove(ctx context.Context, roomID domain.RoomID, entryID string) error
	List(ctx context.Context, roomID domain.RoomID) ([]domain.QueueEntry, error)
	Head(ctx context.Context, roomID domain.RoomID) (*domain.QueueEntry, error)
	Advance(ctx context.Context, roomID domain.RoomID) (*domain.QueueEntry, error)

	Subscribe(ctx context.Context, roomID domain.RoomID) (<-chan store.Event, func())
	DeleteRoomState(ctx context.Context, roomID domain.RoomID) error
}

var _ StateStore = (*store.Store)(nil)

// Orchestrator wires rooms, sessions and the shared state store together.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomFactory
	Policy   app.Policy
	State    StateStore

	mu       sync.Mutex
	watchers map[domain.RoomID]func()
}

func New(reg *app.Registry, rooms core.RoomFactory, policy app.Policy, state StateStore) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Policy:   policy,
		State:    state,
		watchers: make(map[domain.RoomID]func()),
	}
}

// OnFrame relays a raw signaling frame from sid to everyone else in its room.
func (o *Orchestrator) OnFrame(sid core.SessionID, data core.Frame) {
	roomID, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	o.publish(roomID, sid, data)
}

// publish fans data out through the room, excluding from when set, and
// applies the backpressure policy to members that could not keep up. A
// kicked member also has its session context canceled so its pumps stop.
// Every room fan-out funnels through here.
func (o *Orchestrator) publish(roomID domain.RoomID, from core.SessionID, data core.Frame) {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}

	res := room.Broadcast(from, data)
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			for _, snap := range o.Registry.MembersOfRoom(roomID) {
				if snap.Session == slow {
					log.Warn().Str("module", "orch").Str("sid", string(snap.SID)).Msg("kicking slow member")
					o.KickBySID(snap.SID)
					o.Registry.Cancel(snap.SID)
				}
			}
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

// BroadcastRoom marshals v and fans it out to every member of the room.
func (o *Orchestrator) BroadcastRoom(roomID domain.RoomID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("broadcast marshal")
		return
	}
	o.publish(roomID, "", b)
}

// BroadcastFrom fans v out to the roommates of sid, excluding sid itself.
func (o *Orchestrator) BroadcastFrom(sid core.SessionID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("broadcast marshal")
		return
	}
	o.OnFrame(sid, b)
}
