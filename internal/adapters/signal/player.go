package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
	"github.com/jamroom/jamroom/internal/playback"
)

// handlePlayerGet replies with the room's playback record, null when none
// has been initialized yet.
func (ctl *SignalWSController) handlePlayerGet(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
) {
	roomID, _, ok := ctl.Orch.Registry.RoomOf(sid)
	if !ok {
		ctl.sendError(conn, "not in a room")
		return
	}
	rec, err := ctl.Orch.State.Fetch(ctx, roomID)
	if err != nil && !errors.Is(err, playback.ErrRecordNotFound) {
		log.Error().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("player fetch")
		ctl.sendError(conn, "fetch_failed")
		return
	}
	ctl.sendJSON(conn, struct {
		Type   string                 `json:"type"`
		Record *domain.PlaybackRecord `json:"record"`
	}{"player_state", rec})
}

// handlePlayerSet upserts the room's playback record. Only the host writes;
// anyone else gets rejected here, at the boundary.
func (ctl *SignalWSController) handlePlayerSet(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	roomID, ok := ctl.requireHost(sid, conn)
	if !ok {
		return
	}
	type payload struct {
		Type   string                `json:"type"`
		Record domain.PlaybackRecord `json:"record"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad player_set payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	p.Record.RoomID = roomID
	if p.Record.Position < 0 {
		p.Record.Position = 0
	}
	if err := ctl.Orch.State.Upsert(ctx, &p.Record); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("player upsert")
		ctl.sendError(conn, "write_failed")
	}
}

// requireHost resolves the caller's room and verifies host role.
func (ctl *SignalWSController) requireHost(sid core.SessionID, conn *WsSignalConn) (domain.RoomID, bool) {
	roomID, _, ok := ctl.Orch.Registry.RoomOf(sid)
	if !ok {
		ctl.sendError(conn, "not in a room")
		return "", false
	}
	room, ok := ctl.Orch.Rooms.Get(roomID)
	if !ok {
		ctl.sendError(conn, "room_not_found")
		return "", false
	}
	user := ctl.Orch.Registry.GetOrCreateUser(sid)
	if room.Room().HostID != user.ID {
		ctl.sendError(conn, "host_only")
		return "", false
	}
	return roomID, true
}
