package signal

import (
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
)

func (ctl *SignalWSController) handlePing(cid domain.ConnID) {
	ctl.sendJSON(cid, protocol.Pong{Type: protocol.TypePong})
}
