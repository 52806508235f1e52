package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/nearby/internal/app/orch"
	"github.com/dkeye/nearby/internal/core"
	"github.com/dkeye/nearby/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleLogin(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data json.RawMessage,
) {
	var p orch.LoginRequest
	if err := decode(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad login payload")
		ctl.sendJSON(conn, core.Event{Type: core.EventLoginError, Data: orch.LoginError{Message: "bad_payload"}})
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("user", p.ID).Msg("login")
	ctl.Orch.Login(ctx, sid, p)
}

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	sess, ok := ctl.Orch.Session(sid)
	if !ok {
		return
	}
	v := sess.View()
	resp := struct {
		Username string        `json:"username,omitempty"`
		UserID   domain.UserID `json:"userId,omitempty"`
		Room     domain.RoomID `json:"room,omitempty"`
		State    string        `json:"state"`
	}{
		Username: v.Profile.Username,
		UserID:   v.Profile.ID,
		Room:     v.RoomID,
		State:    v.State.String(),
	}
	ctl.sendJSON(conn, core.Event{Type: core.EventWhoAmI, Data: resp})
}
