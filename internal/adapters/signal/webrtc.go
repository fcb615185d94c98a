package signal

import (
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
	"github.com/rs/zerolog/log"
)

// handleRelay passes offers, answers and candidates through untouched.
// Failures are reported to the sender only.
func (ctl *SignalWSController) handleRelay(cid domain.ConnID, data []byte) {
	p, err := decode[protocol.Signal](data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad relay payload")
		ctl.sendError(cid, p.Type, err)
		return
	}
	if err := ctl.Orch.Forward(cid, p); err != nil {
		ctl.sendError(cid, p.Type, err)
	}
}
