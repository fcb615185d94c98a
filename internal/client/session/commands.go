package session

import (
	"github.com/mustafaciftc/sesli-sohbet/internal/client/voice"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
)

// ToggleMute flips the local mute flag right away and rolls it back if
// the request cannot be sent. The server's user_muted confirms it.
func (s *Session) ToggleMute() (bool, error) {
	if s.Room() == "" {
		return false, NewError("toggle mute", ErrNotInRoom)
	}
	muted := !s.store.LocalMuted()
	op := s.store.Begin(voice.LocalMute(muted))

	s.mu.Lock()
	prev := s.muteOp
	s.muteOp = op
	s.mu.Unlock()
	if prev != 0 {
		s.store.Confirm(prev)
	}

	if err := s.sender.Send(protocol.ToggleMute{Type: protocol.TypeToggleMute, IsMuted: muted}); err != nil {
		s.store.Rollback(op)
		s.mu.Lock()
		if s.muteOp == op {
			s.muteOp = 0
		}
		s.mu.Unlock()
		return !muted, WrapError("toggle mute", err, "send toggle_mute")
	}
	return muted, nil
}

// StartSpeaking begins push-to-talk. It is refused while muted.
func (s *Session) StartSpeaking() error {
	if s.Room() == "" {
		return NewError("start speaking", ErrNotInRoom)
	}
	if err := s.store.StartPushToTalk(); err != nil {
		return NewError("start speaking", err)
	}
	if err := s.sender.Send(protocol.Envelope{Type: protocol.TypeStartSpeak}); err != nil {
		s.store.StopPushToTalk()
		return WrapError("start speaking", err, "send start_speaking")
	}
	return nil
}

func (s *Session) StopSpeaking() error {
	if s.Room() == "" {
		return NewError("stop speaking", ErrNotInRoom)
	}
	s.store.StopPushToTalk()
	if err := s.sender.Send(protocol.Envelope{Type: protocol.TypeStopSpeak}); err != nil {
		return WrapError("stop speaking", err, "send stop_speaking")
	}
	return nil
}

// SendMessage posts content to the current room. Text keeps working when
// voice is unavailable.
func (s *Session) SendMessage(content string, kind domain.MessageType) error {
	room := s.Room()
	if room == "" {
		return NewError("send message", ErrNotInRoom)
	}
	text, err := domain.NormalizeContent(content, domain.MaxMessageLen)
	if err != nil {
		return NewError("send message", err)
	}
	if _, err := domain.ParseMessageType(string(kind)); err != nil {
		return NewError("send message", err)
	}
	msg := protocol.SendMessage{
		Type:        protocol.TypeSendMessage,
		RoomID:      string(room),
		Content:     text,
		MessageType: string(kind),
	}
	if err := s.sender.Send(msg); err != nil {
		return WrapError("send message", err, "send send_message")
	}
	return nil
}

// Ping asks the server for a pong.
func (s *Session) Ping() error {
	return s.sender.Send(protocol.Envelope{Type: protocol.TypePing})
}
