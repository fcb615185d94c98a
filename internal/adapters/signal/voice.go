package signal

import (
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
)

func (ctl *SignalWSController) handleSpeaking(cid domain.ConnID, speaking bool) {
	event := protocol.TypeStopSpeak
	if speaking {
		event = protocol.TypeStartSpeak
	}
	if err := ctl.Orch.SetSpeaking(cid, speaking); err != nil {
		ctl.sendError(cid, event, err)
	}
}

func (ctl *SignalWSController) handleToggleMute(cid domain.ConnID, data []byte) {
	p, err := decode[protocol.ToggleMute](data)
	if err != nil {
		ctl.sendError(cid, protocol.TypeToggleMute, err)
		return
	}
	if err := ctl.Orch.SetMuted(cid, p.IsMuted); err != nil {
		ctl.sendError(cid, protocol.TypeToggleMute, err)
	}
}
