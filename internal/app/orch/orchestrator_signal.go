package orch

import (
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
)

// Forward relays a negotiation message. It does not take the orchestrator
// lock: ordering per directed pair comes from the sender's single read loop.
func (o *Orchestrator) Forward(sender domain.ConnID, msg protocol.Signal) error {
	return o.Relay.Forward(sender, msg)
}
