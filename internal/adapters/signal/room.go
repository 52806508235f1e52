package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/nearby/internal/core"
	"github.com/dkeye/nearby/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleDisconnectFromRoom leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleDisconnectFromRoom(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data json.RawMessage,
) {
	var roomID string
	if err := decode(data, &roomID); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad disconnect-from-room payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", roomID).Msg("leave")
	ctl.Orch.LeaveRoom(ctx, sid, domain.RoomID(roomID))
}
