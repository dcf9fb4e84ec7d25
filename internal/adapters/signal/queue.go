package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
)

func (ctl *SignalWSController) handleQueueAdd(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	roomID, _, ok := ctl.Orch.Registry.RoomOf(sid)
	if !ok {
		ctl.sendError(conn, "not in a room")
		return
	}
	type payload struct {
		Type   string `json:"type"`
		ItemID string `json:"item_id"`
		Title  string `json:"title"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil || p.ItemID == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad queue_add payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	user := ctl.Orch.Registry.GetOrCreateUser(sid)
	entry := domain.NewQueueEntry(roomID, p.ItemID, p.Title, user.ID)
	if err := ctl.Orch.State.Add(ctx, entry); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("queue add")
		ctl.sendError(conn, "write_failed")
		return
	}
	ctl.sendJSON(conn, struct {
		Type  string             `json:"type"`
		Entry *domain.QueueEntry `json:"entry"`
	}{"queue_added", entry})
}

func (ctl *SignalWSController) handleQueueRemove(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	roomID, _, ok := ctl.Orch.Registry.RoomOf(sid)
	if !ok {
		ctl.sendError(conn, "not in a room")
		return
	}
	type payload struct {
		Type    string `json:"type"`
		EntryID string `json:"entry_id"`
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil || p.EntryID == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}
	if err := ctl.Orch.State.Remove(ctx, roomID, p.EntryID); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("queue remove")
		ctl.sendError(conn, "write_failed")
	}
}

func (ctl *SignalWSController) handleQueueList(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
) {
	roomID, _, ok := ctl.Orch.Registry.RoomOf(sid)
	if !ok {
		ctl.sendError(conn, "not in a room")
		return
	}
	entries, err := ctl.Orch.State.List(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("queue list")
		ctl.sendError(conn, "fetch_failed")
		return
	}
	ctl.sendJSON(conn, struct {
		Type    string              `json:"type"`
		Entries []domain.QueueEntry `json:"entries"`
	}{"queue", entries})
}

// handleQueueAdvance pops the playing entry and replies with the new head.
// Host only; this is what skip and end-of-item map to.
func (ctl *SignalWSController) handleQueueAdvance(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
) {
	roomID, ok := ctl.requireHost(sid, conn)
	if !ok {
		return
	}
	head, err := ctl.Orch.State.Advance(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("queue advance")
		ctl.sendError(conn, "write_failed")
		return
	}
	ctl.sendJSON(conn, struct {
		Type  string             `json:"type"`
		Entry *domain.QueueEntry `json:"entry"`
	}{"queue_head", head})
}
