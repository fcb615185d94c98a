// Package voice mirrors room presence on the client and derives the views
// the controls render from.
package voice

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mustafaciftc/sesli-sohbet/internal/client/peer"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
	"github.com/rs/zerolog/log"
)

const StaleSpeaking = 10 * time.Second

var ErrMuted = errors.New("cannot talk while muted")

// Participant is the local copy of a room member.
type Participant struct {
	ConnID           domain.ConnID `json:"socketId"`
	UserID           domain.UserID `json:"userId"`
	Username         string        `json:"username"`
	IsMuted          bool          `json:"isMuted"`
	IsSpeaking       bool          `json:"isSpeaking"`
	LastSpeakingTime time.Time     `json:"lastSpeakingTime"`
}

type RoomStats struct {
	Participants int    `json:"participants"`
	Speaking     int    `json:"speaking"`
	Connected    int    `json:"connected"`
	Health       Health `json:"health"`
}

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	room         domain.RoomID
	participants map[domain.ConnID]*Participant
	order        []domain.ConnID
	speaking     map[domain.ConnID]struct{}
	count        int

	peers map[domain.ConnID]peer.State
	stats ConnectionStats

	voiceAvailable bool
	localMuted     bool
	pushToTalk     bool

	messages []domain.Message
	unread   int

	pending map[OpID]pendingOp
	nextOp  OpID
}

func NewStore() *Store {
	s := &Store{now: time.Now}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.room = ""
	s.participants = make(map[domain.ConnID]*Participant)
	s.order = nil
	s.speaking = make(map[domain.ConnID]struct{})
	s.count = 0
	s.peers = make(map[domain.ConnID]peer.State)
	s.stats = ConnectionStats{}
	s.voiceAvailable = true
	s.localMuted = false
	s.pushToTalk = false
	s.messages = nil
	s.unread = 0
	s.pending = make(map[OpID]pendingOp)
}

// Reset forgets everything about the room.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Store) SetRoom(room domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
}

func (s *Store) Room() domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Snapshot replaces the member list.
func (s *Store) Snapshot(users []protocol.UserInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants = make(map[domain.ConnID]*Participant, len(users))
	s.order = s.order[:0]
	s.speaking = make(map[domain.ConnID]struct{})
	for _, u := range users {
		s.addLocked(u)
	}
}

func (s *Store) Add(u protocol.UserInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(u)
}

func (s *Store) addLocked(u protocol.UserInfo) {
	if _, ok := s.participants[u.SocketID]; !ok {
		s.order = append(s.order, u.SocketID)
	}
	p := &Participant{
		ConnID:     u.SocketID,
		UserID:     u.UserID,
		Username:   u.Username,
		IsMuted:    u.IsMuted,
		IsSpeaking: u.IsSpeaking && !u.IsMuted,
	}
	s.participants[u.SocketID] = p
	delete(s.speaking, u.SocketID)
	if p.IsSpeaking {
		p.LastSpeakingTime = s.now()
		s.speaking[u.SocketID] = struct{}{}
	}
}

func (s *Store) Remove(cid domain.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[cid]; !ok {
		return
	}
	delete(s.participants, cid)
	delete(s.speaking, cid)
	for i, id := range s.order {
		if id == cid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Participants returns copies in arrival order.
func (s *Store) Participants() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Participant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.participants[id])
	}
	return out
}

// ApplySpeaking records a speaking change. Speaking while muted is ignored.
func (s *Store) ApplySpeaking(cid domain.ConnID, speaking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[cid]
	if !ok || (speaking && p.IsMuted) {
		return
	}
	p.IsSpeaking = speaking
	if speaking {
		p.LastSpeakingTime = s.now()
		s.speaking[cid] = struct{}{}
	} else {
		delete(s.speaking, cid)
	}
}

// ApplyMuted records a mute change. Muting clears speaking in the same step.
func (s *Store) ApplyMuted(cid domain.ConnID, muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[cid]
	if !ok {
		return
	}
	p.IsMuted = muted
	if muted {
		p.IsSpeaking = false
		delete(s.speaking, cid)
	}
}

func (s *Store) SpeakingUsers() []domain.ConnID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ConnID, 0, len(s.speaking))
	for id := range s.speaking {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SweepStaleSpeakers clears speaking flags older than StaleSpeaking and
// returns the connections it cleared.
func (s *Store) SweepStaleSpeakers() []domain.ConnID {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-StaleSpeaking)
	var cleared []domain.ConnID
	for id := range s.speaking {
		p := s.participants[id]
		if p.LastSpeakingTime.Before(cutoff) {
			p.IsSpeaking = false
			delete(s.speaking, id)
			cleared = append(cleared, id)
		}
	}
	sort.Slice(cleared, func(i, j int) bool { return cleared[i] < cleared[j] })
	return cleared
}

// RunSweeper sweeps every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cleared := s.SweepStaleSpeakers(); len(cleared) > 0 {
				log.Debug().Str("module", "client.voice").Int("cleared", len(cleared)).Msg("stale speakers")
			}
		}
	}
}

// ApplyTransition moves one link between state buckets. Only the creation
// transition of a record adds a link; anything else for an unseen remote is
// stale and ignored.
func (s *Store) ApplyTransition(tr peer.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, seen := s.peers[tr.Remote]
	switch {
	case seen && old == tr.To:
		return
	case seen:
		s.stats.bucket(old, -1)
	case tr.From == peer.StateConnecting && tr.To == peer.StateConnecting:
		s.stats.Total++
	default:
		return
	}
	if tr.To == peer.StateClosed {
		s.stats.Total--
		delete(s.peers, tr.Remote)
		return
	}
	s.stats.bucket(tr.To, 1)
	s.peers[tr.Remote] = tr.To
}

func (s *Store) ConnectionStats() ConnectionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Store) Health() Health {
	return HealthOf(s.ConnectionStats())
}

// SetCount stores the server's participant count.
func (s *Store) SetCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = n
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Store) SetVoiceAvailable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceAvailable = ok
}

func (s *Store) VoiceAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceAvailable
}

func (s *Store) LocalMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localMuted
}

// StartPushToTalk is refused while muted.
func (s *Store) StartPushToTalk() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.localMuted {
		return ErrMuted
	}
	s.pushToTalk = true
	return nil
}

func (s *Store) StopPushToTalk() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushToTalk = false
}

func (s *Store) PushToTalk() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushToTalk
}

func (s *Store) AddMessage(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	s.unread++
}

func (s *Store) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages...)
}

func (s *Store) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Store) MarkRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread = 0
}

func (s *Store) RoomStats() RoomStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RoomStats{
		Participants: s.count,
		Speaking:     len(s.speaking),
		Connected:    s.stats.Connected,
		Health:       HealthOf(s.stats),
	}
}
