package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
)

func (ctl *SignalWSController) handleRename(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type renamePayload struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	var p renamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", p.Name).Msg("rename")
	if err := ctl.Orch.Registry.UpdateUsername(sid, p.Name); err != nil {
		ctl.sendError(conn, "invalid_name")
		return
	}
	ctl.handleWhoAmI(sid, conn)

	user := ctl.Orch.Registry.GetOrCreateUser(sid)
	ctl.BroadcastFrom(sid, struct {
		Type string      `json:"type"`
		User domain.User `json:"user"`
	}{
		Type: "member_updated",
		User: *user,
	})
}

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	user := ctl.Orch.Registry.GetOrCreateUser(sid)

	resp := struct {
		Type     string          `json:"type"`
		ID       domain.UserID   `json:"id"`
		Username string          `json:"username"`
		Room     domain.RoomID   `json:"room,omitempty"`
		RoomName domain.RoomName `json:"room_name,omitempty"`
		IsHost   bool            `json:"is_host"`
	}{
		Type:     "whoami",
		ID:       user.ID,
		Username: user.Username,
	}
	if roomID, _, ok := ctl.Orch.Registry.RoomOf(sid); ok {
		if room, ok := ctl.Orch.Rooms.Get(roomID); ok {
			resp.Room = roomID
			resp.RoomName = room.Room().Name
			resp.IsHost = room.Room().HostID == user.ID
		}
	}
	ctl.sendJSON(conn, resp)
}

// handleMediaState records the client's local track toggles and tells the
// room. Indicators only; the sync core never reads these flags.
func (ctl *SignalWSController) handleMediaState(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type payload struct {
		Type         string `json:"type"`
		AudioEnabled bool   `json:"audio_enabled"`
		VideoEnabled bool   `json:"video_enabled"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "bad_payload")
		return
	}
	if !ctl.Orch.Registry.UpdateMediaFlags(sid, p.AudioEnabled, p.VideoEnabled) {
		return
	}
	user := ctl.Orch.Registry.GetOrCreateUser(sid)
	ctl.BroadcastFrom(sid, struct {
		Type         string        `json:"type"`
		UserID       domain.UserID `json:"user_id"`
		AudioEnabled bool          `json:"audio_enabled"`
		VideoEnabled bool          `json:"video_enabled"`
	}{
		Type:         "member_media",
		UserID:       user.ID,
		AudioEnabled: p.AudioEnabled,
		VideoEnabled: p.VideoEnabled,
	})
}
