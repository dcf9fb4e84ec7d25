package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
)

func (ctl *SignalWSController) createRoom(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	user := ctl.Orch.Registry.GetOrCreateUser(sid)
	if !ctl.Limiter.Allow(user.ID) {
		ctl.sendError(conn, "too many rooms, slow down")
		return
	}

	type payload struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad create_room payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	raw := p.Name
	if len(raw) > 36 {
		raw = raw[:36]
	}

	room := ctl.Orch.CreateRoom(ctx, domain.RoomName(raw), user.ID)
	ctl.sendJSON(conn, struct {
		Type   string        `json:"type"`
		Room   domain.RoomID `json:"room"`
		HostID domain.UserID `json:"host_id"`
	}{"room_created", room.Room().ID, user.ID})
}

func (ctl *SignalWSController) handleJoin(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
		Name string `json:"name,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	room, ok := ctl.Orch.Rooms.Get(domain.RoomID(p.Room))
	if !ok {
		log.Error().Str("module", "signal").Str("room_id", p.Room).Msg("room does not exist")
		ctl.sendError(conn, "room_not_found")
		return
	}

	if p.Name != "" {
		if err := ctl.Orch.Registry.UpdateUsername(sid, p.Name); err != nil {
			ctl.sendError(conn, "invalid_name")
			return
		}
		log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", p.Name).Msg("rename on join")
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room_id", p.Room).Msg("join")
	if err := ctl.Orch.Join(sid, domain.RoomID(p.Room)); err != nil {
		ctl.sendError(conn, err.Error())
		return
	}

	// The joiner gets the current roster; existing members each open an
	// initiator-side link toward the newcomer on member_joined, so the
	// joiner only ever answers.
	ctl.sendJSON(conn, struct {
		Type     string           `json:"type"`
		Room     domain.RoomID    `json:"room"`
		RoomName domain.RoomName  `json:"room_name"`
		HostID   domain.UserID    `json:"host_id"`
		Members  []core.MemberDTO `json:"members"`
		Count    int              `json:"count"`
	}{
		Type:     "room_state",
		Room:     room.Room().ID,
		RoomName: room.Room().Name,
		HostID:   room.Room().HostID,
		Members:  room.MembersSnapshot(),
		Count:    room.MemberCount(),
	})

	user := ctl.Orch.Registry.GetOrCreateUser(sid)
	ctl.BroadcastFrom(sid, struct {
		Type string      `json:"type"`
		User domain.User `json:"user"`
	}{
		Type: "member_joined",
		User: *user,
	})
}

// handleLeave exits the current room; the socket stays up.
func (ctl *SignalWSController) handleLeave(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.broadcastLeft(sid)
	ctl.Orch.KickBySID(sid)
	ctl.sendJSON(conn, map[string]any{
		"type": "left",
	})
}

// broadcastLeft tells roommates the user is gone, before membership is torn
// down. Remote peers tear down their link to this user on member_left.
func (ctl *SignalWSController) broadcastLeft(sid core.SessionID) {
	if _, _, ok := ctl.Orch.Registry.RoomOf(sid); !ok {
		return
	}
	user := ctl.Orch.Registry.GetOrCreateUser(sid)
	ctl.BroadcastFrom(sid, struct {
		Type string      `json:"type"`
		User domain.User `json:"user"`
	}{
		Type: "member_left",
		User: *user,
	})
}
