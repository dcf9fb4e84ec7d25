package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
)

// relaySignal rebroadcasts a negotiation message (offer, answer,
// ice-candidate) to the sender's room. The sender identity is stamped
// server-side; receivers discard messages not targeted at them. The server
// never inspects SDP or candidates.
func (ctl *SignalWSController) relaySignal(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var msg domain.SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad signal payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if msg.TargetUserID == "" {
		ctl.sendError(conn, "missing target")
		return
	}

	user := ctl.Orch.Registry.GetOrCreateUser(sid)
	msg.FromUserID = user.ID

	log.Debug().
		Str("module", "signal").
		Str("type", msg.Type).
		Str("from", string(msg.FromUserID)).
		Str("target", string(msg.TargetUserID)).
		Msg("relaying negotiation message")
	ctl.BroadcastFrom(sid, msg)
}

// handleChat relays a chat line to the room. No persistence.
func (ctl *SignalWSController) handleChat(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type chatPayload struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad chat payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.Text == "" {
		return
	}
	if len(p.Text) > 500 {
		p.Text = p.Text[:500]
	}
	user := ctl.Orch.Registry.GetOrCreateUser(sid)
	ctl.BroadcastFrom(sid, struct {
		Type string      `json:"type"`
		User domain.User `json:"user"`
		Text string      `json:"text"`
	}{
		Type: "chat",
		User: *user,
		Text: p.Text,
	})
}
