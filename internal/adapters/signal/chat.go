package signal

import (
	"encoding/json"

	"github.com/dkeye/nearby/internal/core"
	"github.com/dkeye/nearby/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleSendMessage(
	sid core.SessionID,
	conn *WsSignalConn,
	data json.RawMessage,
) {
	var p struct {
		Message string `json:"message"`
	}
	if err := decode(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad send-message payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if !ctl.Limiter.Allow(string(sid)) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("message rate limited")
		ctl.sendError(conn, "rate_limited")
		return
	}
	ctl.Orch.SendMessage(sid, p.Message)
}

func (ctl *SignalWSController) handleTyping(
	sid core.SessionID,
	conn *WsSignalConn,
	data json.RawMessage,
	stop bool,
) {
	var p struct {
		CurrentRoom string `json:"currentRoom"`
		Username    string `json:"username"`
	}
	if err := decode(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad typing payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Orch.Typing(sid, domain.RoomID(p.CurrentRoom), p.Username, stop)
}
