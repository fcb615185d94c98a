package app

import (
	"encoding/json"
	"fmt"

	"github.com/mustafaciftc/sesli-sohbet/internal/core"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Relay forwards negotiation blobs between two members of the same room.
// It keeps no state; the registry is consulted on every message.
type Relay struct {
	Fanout *Fanout
}

func NewRelay(f *Fanout) *Relay { return &Relay{Fanout: f} }

// Forward delivers msg from sender to msg.Target. The membership check and the
// enqueue happen under one registry read lock, so a target that has left is
// never reached.
func (r *Relay) Forward(sender domain.ConnID, msg protocol.Signal) error {
	if !protocol.IsSignaling(msg.Type) {
		return fmt.Errorf("relay %q: %w", msg.Type, domain.ErrMalformed)
	}
	if msg.Target == "" {
		return fmt.Errorf("relay %s without target: %w", msg.Type, domain.ErrMalformed)
	}
	target := msg.Target
	if target == sender {
		return domain.ErrTargetUnreachable
	}
	msg.Sender, msg.Target = sender, ""

	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("relay marshal: %w", err)
	}

	reg := r.Fanout.Registry
	room, err := reg.sendIfSameRoom(sender, target, frame)
	if err != nil {
		if err == domain.ErrTargetUnreachable {
			log.Debug().Str("module", "app.relay").Str("sid", string(sender)).Str("target", string(target)).
				Str("kind", msg.Type).Msg("target unreachable")
			return err
		}
		r.Fanout.onSendError(room, target, err)
	}
	return nil
}

func (r *Registry) sendIfSameRoom(a, b domain.ConnID, frame core.Frame) (domain.RoomID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ea, ok := r.sessions[a]
	if !ok || ea.Part == nil {
		return "", domain.ErrTargetUnreachable
	}
	eb, ok := r.sessions[b]
	if !ok || eb.Part == nil || eb.Part.RoomID != ea.Part.RoomID || eb.Signal == nil {
		return "", domain.ErrTargetUnreachable
	}
	return ea.Part.RoomID, eb.Signal.TrySend(frame)
}
