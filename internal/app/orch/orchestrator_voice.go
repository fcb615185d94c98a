package orch

import (
	"context"

	"github.com/mustafaciftc/sesli-sohbet/internal/app"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/idgen"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) SetMuted(cid domain.ConnID, muted bool) error {
	return o.updateFlags(cid, app.FlagUpdate{IsMuted: &muted})
}

// SetSpeaking is ignored while the participant is muted.
func (o *Orchestrator) SetSpeaking(cid domain.ConnID, speaking bool) error {
	return o.updateFlags(cid, app.FlagUpdate{IsSpeaking: &speaking})
}

func (o *Orchestrator) updateFlags(cid domain.ConnID, upd app.FlagUpdate) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ch, err := o.Registry.UpdateFlags(cid, upd)
	if err != nil {
		return err
	}
	// An accepted start_speaking is re-announced even when the flag was
	// already set, so listeners can refresh a speaker they would sweep.
	refresh := upd.IsSpeaking != nil && *upd.IsSpeaking && p.IsSpeaking
	switch {
	case ch.Muted:
		// Clients clear speaking when they see a mute.
		o.Fanout.ToRoom(p.RoomID, "", protocol.UserMuted{
			Type:     protocol.TypeUserMuted,
			UserID:   p.UserID,
			Username: p.Username,
			SocketID: p.ConnID,
			IsMuted:  p.IsMuted,
		})
	case ch.Speaking || refresh:
		o.Fanout.ToRoom(p.RoomID, "", protocol.UserSpeaking{
			Type:       protocol.TypeUserSpeak,
			UserID:     p.UserID,
			Username:   p.Username,
			SocketID:   p.ConnID,
			IsSpeaking: p.IsSpeaking,
		})
	}
	return nil
}

// SendMessage stamps a message with a fresh id and broadcasts it to the whole
// room, sender included. Ids are assigned under the same lock as the enqueue,
// so every member receives messages in id order.
func (o *Orchestrator) SendMessage(ctx context.Context, cid domain.ConnID, req protocol.SendMessage) (domain.Message, error) {
	sess, ok := o.Registry.GetSession(cid)
	if !ok || sess.RoomID == "" {
		return domain.Message{}, domain.ErrNotAMember
	}
	if req.RoomID != "" && domain.RoomID(req.RoomID) != sess.RoomID {
		return domain.Message{}, domain.ErrNotAMember
	}
	content, err := domain.NormalizeContent(req.Content, o.MaxMessageLen)
	if err != nil {
		return domain.Message{}, err
	}
	typ, err := domain.ParseMessageType(req.MessageType)
	if err != nil {
		return domain.Message{}, err
	}

	o.mu.Lock()
	room, ok := o.Registry.RoomOf(cid)
	if !ok {
		o.mu.Unlock()
		return domain.Message{}, domain.ErrNotAMember
	}
	now := o.now().UTC()
	msg := domain.Message{
		ID:        idgen.NewULIDAt(now),
		RoomID:    room,
		UserID:    sess.User.ID,
		Username:  sess.User.Username,
		Content:   content,
		Type:      typ,
		Timestamp: now,
	}
	o.Fanout.ToRoom(room, "", protocol.NewMessage{Type: protocol.TypeNewMessage, Message: msg})
	o.mu.Unlock()

	if o.History != nil {
		if err := o.History.Append(ctx, msg); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("room", string(room)).Str("id", msg.ID).Msg("store message")
		}
	}
	return msg, nil
}
