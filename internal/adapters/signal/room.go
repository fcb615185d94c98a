package signal

import (
	"context"

	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, cid domain.ConnID, data []byte) {
	p, err := decode[protocol.JoinRoom](data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(cid, protocol.TypeJoinRoom, err)
		return
	}
	room, err := domain.ParseRoomID(p.RoomID)
	if err != nil {
		ctl.sendError(cid, protocol.TypeJoinRoom, err)
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(cid)).Str("room", string(room)).Msg("join")
	if _, err := ctl.Orch.Join(ctx, cid, room); err != nil {
		ctl.sendError(cid, protocol.TypeJoinRoom, err)
	}
}

// handleLeave leaves the current room; the connection stays open.
// The room id in the payload is not trusted, the registry decides.
func (ctl *SignalWSController) handleLeave(ctx context.Context, cid domain.ConnID) {
	log.Info().Str("module", "signal").Str("sid", string(cid)).Msg("leave")
	ctl.Orch.Leave(ctx, cid)
}
