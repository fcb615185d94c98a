package session

import (
	"github.com/mustafaciftc/sesli-sohbet/internal/client/peer"
	"github.com/mustafaciftc/sesli-sohbet/internal/client/signaling"
	"github.com/mustafaciftc/sesli-sohbet/internal/client/voice"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
	"github.com/rs/zerolog/log"
)

func decode[T any](ev signaling.Event) (T, bool) {
	var v T
	if err := ev.Decode(&v); err != nil {
		log.Warn().Err(err).Str("module", "client.session").Str("type", ev.Type).Msg("bad frame")
		return v, false
	}
	return v, true
}

func (s *Session) onConnected(ev signaling.Event) {
	msg, ok := decode[protocol.Connected](ev)
	if !ok {
		return
	}
	s.mu.Lock()
	s.self = msg.SocketID
	s.mu.Unlock()
	s.peers.SetSelf(msg.SocketID)
	log.Info().Str("module", "client.session").Str("sid", string(msg.SocketID)).Msg("connected")
}

// onRoomUsers confirms the join and starts negotiating with the members.
func (s *Session) onRoomUsers(ev signaling.Event) {
	msg, ok := decode[protocol.RoomUsers](ev)
	if !ok {
		return
	}
	s.mu.Lock()
	if msg.RoomID != s.room {
		s.mu.Unlock()
		return
	}
	op := s.joinOp
	s.joinOp = 0
	s.joined = true
	s.initializing = false
	ctx := s.ctx
	s.mu.Unlock()

	if op != 0 {
		s.store.Confirm(op)
	}
	s.store.Snapshot(msg.Users)
	for _, u := range msg.Users {
		if err := s.peers.Discover(ctx, u.SocketID, u.UserID); err != nil {
			s.report(WrapError("negotiate", err, string(u.SocketID)))
		}
	}
}

func (s *Session) onUserJoined(ev signaling.Event) {
	msg, ok := decode[protocol.UserJoined](ev)
	if !ok {
		return
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	s.store.Add(msg.UserInfo)
	if err := s.peers.Discover(ctx, msg.SocketID, msg.UserID); err != nil {
		s.report(WrapError("negotiate", err, string(msg.SocketID)))
	}
}

func (s *Session) onUserLeft(ev signaling.Event) {
	msg, ok := decode[protocol.UserLeft](ev)
	if !ok {
		return
	}
	s.store.Remove(msg.SocketID)
	s.peers.Remove(msg.SocketID)
}

func (s *Session) onRoomStatus(ev signaling.Event) {
	msg, ok := decode[protocol.RoomStatus](ev)
	if !ok || msg.RoomID != s.Room() {
		return
	}
	s.store.SetCount(msg.ParticipantCount)
}

func (s *Session) onUserSpeaking(ev signaling.Event) {
	msg, ok := decode[protocol.UserSpeaking](ev)
	if !ok {
		return
	}
	s.store.ApplySpeaking(msg.SocketID, msg.IsSpeaking)
}

func (s *Session) onUserMuted(ev signaling.Event) {
	msg, ok := decode[protocol.UserMuted](ev)
	if !ok {
		return
	}
	s.store.ApplyMuted(msg.SocketID, msg.IsMuted)

	var op voice.OpID
	s.mu.Lock()
	if msg.SocketID == s.self {
		op, s.muteOp = s.muteOp, 0
	}
	s.mu.Unlock()
	if op != 0 {
		s.store.Confirm(op)
	}
}

func (s *Session) onNewMessage(ev signaling.Event) {
	msg, ok := decode[protocol.NewMessage](ev)
	if !ok {
		return
	}
	s.store.AddMessage(msg.Message)
}

func (s *Session) onSignal(ev signaling.Event) {
	msg, ok := decode[protocol.Signal](ev)
	if !ok {
		return
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	var err error
	switch msg.Type {
	case protocol.TypeOffer:
		err = s.peers.HandleOffer(ctx, msg.Sender, msg.SDP)
	case protocol.TypeAnswer:
		err = s.peers.HandleAnswer(ctx, msg.Sender, msg.SDP)
	case protocol.TypeICECandidate:
		err = s.peers.HandleCandidate(msg.Sender, msg.Candidate)
	}
	if err != nil {
		s.report(WrapError("negotiate", err, string(msg.Sender)))
	}
}

// onServerError rolls back a pending join the server refused, whatever the
// reason. Errors answering other frames leave the join alone.
func (s *Session) onServerError(ev signaling.Event) {
	msg, ok := decode[protocol.Error](ev)
	if !ok {
		return
	}
	err := domain.FromCode(msg.Code)

	s.mu.Lock()
	op := s.joinOp
	rollback := s.initializing && op != 0 && msg.Event == protocol.TypeJoinRoom
	if rollback {
		s.joinOp = 0
		s.initializing = false
		s.room = ""
	}
	s.mu.Unlock()

	if rollback {
		s.store.Rollback(op)
		s.store.SetRoom("")
		s.report(WrapError("join", err, msg.Message))
		return
	}
	s.report(WrapError("server", err, msg.Message))
}

func (s *Session) onTransition(tr peer.Transition) {
	s.store.ApplyTransition(tr)
	if tr.Err != nil {
		s.report(WrapError("peer", tr.Err, string(tr.Remote)))
	}
}
