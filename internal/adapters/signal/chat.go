package signal

import (
	"context"

	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
)

func (ctl *SignalWSController) handleSendMessage(ctx context.Context, cid domain.ConnID, data []byte) {
	p, err := decode[protocol.SendMessage](data)
	if err != nil {
		ctl.sendError(cid, protocol.TypeSendMessage, err)
		return
	}
	if _, err := ctl.Orch.SendMessage(ctx, cid, p); err != nil {
		ctl.sendError(cid, protocol.TypeSendMessage, err)
	}
}
