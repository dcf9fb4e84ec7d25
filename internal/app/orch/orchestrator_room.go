package orch

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
)

var ErrRoomNotFound = errors.New("room not found")

// CreateRoom makes a room with the creator as host and starts its change
// feed watcher.
func (o *Orchestrator) CreateRoom(ctx context.Context, name domain.RoomName, host domain.UserID) core.RoomService {
	room := o.Rooms.Create(name, host)
	o.watchFeed(ctx, room.Room().ID)
	log.Info().Str("module", "orch").Str("room", string(room.Room().ID)).Str("host", string(host)).Msg("room created")
	return room
}

// Join moves the session into the room, leaving any previous room first.
func (o *Orchestrator) Join(sid core.SessionID, roomID domain.RoomID) error {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	if prev, _, ok := o.Registry.RoomOf(sid); ok {
		o.KickBySID(sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(prev)).Msg("left previous room")
	}
	session, ok := o.Registry.GetSession(sid)
	if !ok {
		return errors.New("no session bound")
	}
	room.AddMember(sid, session)
	o.Registry.UpdateRoom(sid, roomID)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("joined room")
	return nil
}

// KickBySID removes the session from its room, if any. The last member out
// turns the lights off: an emptied room is evicted with its shared state.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	roomID, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	o.Registry.RemoveRoom(sid)
	if room, ok := o.Rooms.Get(roomID); ok {
		room.RemoveMember(sid)
		if room.MemberCount() == 0 {
			o.EvictRoom(context.Background(), roomID)
		}
	}
}

// OnDisconnect tears the session fully down: room membership plus binding.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.KickBySID(sid)
	o.Registry.Unbind(sid)
}

// EvictRoom stops the feed watcher, removes the room from the factory, kicks
// every remaining member and deletes the room's shared state. The room leaves
// the factory before the kicks, so a kick that empties it cannot re-enter the
// eviction.
func (o *Orchestrator) EvictRoom(ctx context.Context, roomID domain.RoomID) {
	o.stopFeed(roomID)
	o.Rooms.StopRoom(roomID)
	for _, snap := range o.Registry.MembersOfRoom(roomID) {
		o.KickBySID(snap.SID)
	}
	if err := o.State.DeleteRoomState(ctx, roomID); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(roomID)).Msg("delete room state")
	}
	log.Info().Str("module", "orch").Str("room", string(roomID)).Msg("room evicted")
}
