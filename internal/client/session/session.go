// Package session sequences joining a room on the client: microphone,
// handlers, join and a teardown that always runs to completion.
package session

import (
	"context"
	"sync"

	"github.com/mustafaciftc/sesli-sohbet/internal/client/peer"
	"github.com/mustafaciftc/sesli-sohbet/internal/client/signaling"
	"github.com/mustafaciftc/sesli-sohbet/internal/client/voice"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Sender delivers frames to the signaling server.
type Sender interface {
	Send(v any) error
}

// MicrophoneFunc acquires the local audio track.
type MicrophoneFunc func(ctx context.Context) (peer.LocalTrack, error)

type Option func(*Session)

// WithErrorHandler receives errors that arrive asynchronously: server error
// frames and negotiation failures.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Session) { s.onError = fn }
}

type Session struct {
	sender Sender
	bus    *signaling.Bus
	peers  *peer.Manager
	store  *voice.Store
	mic    MicrophoneFunc

	onError func(error)

	mu           sync.Mutex
	ctx          context.Context
	self         domain.ConnID
	room         domain.RoomID
	initializing bool
	joined       bool
	closed       bool
	subscribed   bool
	joinOp       voice.OpID
	muteOp       voice.OpID
	track        peer.LocalTrack
	unsubs       []func()

	closeOnce sync.Once
}

// New wires the session to the bus. The connected handler is registered
// immediately so the server assigned id is never missed.
func New(sender Sender, bus *signaling.Bus, peers *peer.Manager, store *voice.Store, mic MicrophoneFunc, opts ...Option) *Session {
	s := &Session{
		sender:  sender,
		bus:     bus,
		peers:   peers,
		store:   store,
		mic:     mic,
		onError: func(error) {},
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubs = []func(){
		bus.Subscribe(protocol.TypeConnected, s.onConnected),
		peers.Listen(s.onTransition),
	}
	return s
}

func (s *Session) Self() domain.ConnID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

func (s *Session) Room() domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Joined reports whether the server confirmed the current room.
func (s *Session) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

// Initialize joins room. While one call waits for the server's answer a
// second one returns ErrInitInFlight and changes nothing. A microphone
// failure leaves the session text only.
func (s *Session) Initialize(ctx context.Context, room domain.RoomID) error {
	room, err := domain.ParseRoomID(string(room))
	if err != nil {
		return NewError("initialize", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return NewError("initialize", ErrClosed)
	}
	if s.initializing {
		s.mu.Unlock()
		return NewError("initialize", ErrInitInFlight)
	}
	s.initializing = true
	s.ctx = ctx
	needTrack := s.track == nil
	firstJoin := !s.subscribed
	s.subscribed = true
	s.mu.Unlock()

	if needTrack && s.mic != nil {
		track, err := s.mic(ctx)
		if err != nil {
			log.Warn().Err(err).Str("module", "client.session").Msg("microphone unavailable, continuing text only")
			s.store.SetVoiceAvailable(false)
		} else {
			s.mu.Lock()
			s.track = track
			s.mu.Unlock()
			s.store.SetVoiceAvailable(true)
			s.peers.SetLocalTrack(ctx, track)
		}
	}

	if firstJoin {
		s.subscribe()
	}

	if prev := s.store.Room(); prev != "" && prev != room {
		// Moving rooms: the old mesh is gone once the server commits the join.
		s.peers.CloseAll()
	}
	s.store.SetRoom(room)
	op := s.store.Begin(voice.CountDelta(1))

	s.mu.Lock()
	s.room = room
	s.joined = false
	s.joinOp = op
	s.mu.Unlock()

	if err := s.sender.Send(protocol.JoinRoom{Type: protocol.TypeJoinRoom, RoomID: string(room)}); err != nil {
		s.store.Rollback(op)
		s.mu.Lock()
		s.initializing = false
		s.room = ""
		s.mu.Unlock()
		return WrapError("initialize", err, "send join_room")
	}
	log.Info().Str("module", "client.session").Str("room", string(room)).Msg("join requested")
	return nil
}

func (s *Session) subscribe() {
	handlers := map[string]signaling.Handler{
		protocol.TypeRoomUsers:    s.onRoomUsers,
		protocol.TypeUserJoined:   s.onUserJoined,
		protocol.TypeUserLeft:     s.onUserLeft,
		protocol.TypeRoomStatus:   s.onRoomStatus,
		protocol.TypeUserSpeak:    s.onUserSpeaking,
		protocol.TypeUserMuted:    s.onUserMuted,
		protocol.TypeNewMessage:   s.onNewMessage,
		protocol.TypeOffer:        s.onSignal,
		protocol.TypeAnswer:       s.onSignal,
		protocol.TypeICECandidate: s.onSignal,
		protocol.TypeError:        s.onServerError,
	}
	unsubs := make([]func(), 0, len(handlers))
	for kind, h := range handlers {
		unsubs = append(unsubs, s.bus.Subscribe(kind, h))
	}
	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.unsubs = append(s.unsubs, unsubs...)
	}
	s.mu.Unlock()
	if closed {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Close stops local audio, tears down every peer, removes every handler
// and leaves the room. Only the first call does anything.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		track := s.track
		s.track = nil
		unsubs := s.unsubs
		s.unsubs = nil
		room := s.room
		s.room = ""
		s.joined = false
		s.initializing = false
		s.mu.Unlock()

		if track != nil {
			track.Stop()
		}
		s.peers.CloseAll()
		for _, unsub := range unsubs {
			unsub()
		}
		if room != "" {
			if err := s.sender.Send(protocol.LeaveRoom{Type: protocol.TypeLeaveRoom, RoomID: string(room)}); err != nil {
				log.Debug().Err(err).Str("module", "client.session").Msg("leave_room not sent")
			}
		}
		s.store.Reset()
		log.Info().Str("module", "client.session").Str("room", string(room)).Msg("session closed")
	})
}

func (s *Session) report(err error) {
	log.Warn().Err(err).Str("module", "client.session").Msg("session error")
	s.onError(err)
}
