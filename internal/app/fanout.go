package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mustafaciftc/sesli-sohbet/internal/core"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Fanout turns committed registry changes into frames queued on member connections.
type Fanout struct {
	Registry *Registry
	Policy   Policy
}

func NewFanout(reg *Registry, policy Policy) *Fanout {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Fanout{Registry: reg, Policy: policy}
}

// ToRoom queues v on every member of room except the given connection.
// It returns the number of members the frame was queued for.
func (f *Fanout) ToRoom(room domain.RoomID, except domain.ConnID, v any) int {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.fanout").Msg("marshal broadcast")
		return 0
	}
	sent := 0
	for _, rc := range f.Registry.recipients(room, except) {
		if f.deliver(room, rc.ConnID, rc.Signal, frame) {
			sent++
		}
	}
	return sent
}

// ToConn queues v on a single connection.
func (f *Fanout) ToConn(cid domain.ConnID, v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	sig, ok := f.Registry.signalOf(cid)
	if !ok {
		return core.ErrConnClosed
	}
	room, _ := f.Registry.RoomOf(cid)
	if !f.deliver(room, cid, sig, frame) {
		return core.ErrBackpressure
	}
	return nil
}

func (f *Fanout) deliver(room domain.RoomID, cid domain.ConnID, sig core.SignalConnection, frame core.Frame) bool {
	err := sig.TrySend(frame)
	if err == nil {
		return true
	}
	f.onSendError(room, cid, err)
	return false
}

func (f *Fanout) onSendError(room domain.RoomID, cid domain.ConnID, err error) {
	if !errors.Is(err, core.ErrBackpressure) {
		log.Debug().Err(err).Str("module", "app.fanout").Str("sid", string(cid)).Msg("send to closed connection")
		return
	}
	action := f.Policy.OnBackPressure(room, cid)
	log.Warn().Str("module", "app.fanout").Str("sid", string(cid)).Str("room", string(room)).
		Stringer("action", action).Msg("send queue full")
	if action == KickMember {
		f.Registry.Cancel(cid)
	}
}
