package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mustafaciftc/sesli-sohbet/internal/core"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	User   domain.User
	Signal core.SignalConnection
	Cancel context.CancelFunc

	// Part is nil while the connection is not in a room.
	Part    *domain.Participant
	joinSeq uint64
}

// Registry is the presence table: live connection -> user, room and voice flags.
// Only copies leave the registry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnID]*sessionEntry
	rooms    map[domain.RoomID]map[domain.ConnID]struct{}
	seq      uint64

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ConnID]*sessionEntry),
		rooms:    make(map[domain.RoomID]map[domain.ConnID]struct{}),
		now:      time.Now,
	}
}

// Session is a read-only view of a bound connection.
type Session struct {
	ConnID domain.ConnID
	User   domain.User
	Signal core.SignalConnection
	RoomID domain.RoomID
}

// LeaveResult describes a removal from a room.
type LeaveResult struct {
	Participant domain.Participant
	Remaining   int
}

// JoinResult describes a committed join. Left is set when the connection
// was moved out of a different room.
type JoinResult struct {
	Self     domain.Participant
	Others   []domain.Participant
	Count    int
	Left     *LeaveResult
	Rejoined bool
}

// FlagUpdate is a partial update of voice flags. Nil fields are left alone.
type FlagUpdate struct {
	IsMuted    *bool
	IsSpeaking *bool
}

// FlagChange reports which flags actually changed.
type FlagChange struct {
	Muted    bool
	Speaking bool
}

func (c FlagChange) Any() bool { return c.Muted || c.Speaking }

func (r *Registry) BindSignal(cid domain.ConnID, user domain.User, sig core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[cid]; ok {
		e.User, e.Signal, e.Cancel = user, sig, cancel
	} else {
		r.sessions[cid] = &sessionEntry{User: user, Signal: sig, Cancel: cancel}
	}
	log.Info().Str("module", "app.registry").Str("sid", string(cid)).Str("user", string(user.ID)).Msg("bound signal")
}

func (r *Registry) GetSession(cid domain.ConnID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[cid]
	if !ok {
		return Session{}, false
	}
	s := Session{ConnID: cid, User: e.User, Signal: e.Signal}
	if e.Part != nil {
		s.RoomID = e.Part.RoomID
	}
	return s, true
}

// Unbind forgets the connection, removing it from its room first.
func (r *Registry) Unbind(cid domain.ConnID) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, left := r.leaveLocked(cid)
	delete(r.sessions, cid)
	log.Info().Str("module", "app.registry").Str("sid", string(cid)).Msg("unbind session")
	return res, left
}

// Join places cid into room, implicitly leaving any other room first.
// Joining the room the connection is already in changes nothing.
func (r *Registry) Join(cid domain.ConnID, room domain.RoomID, user domain.User) (JoinResult, error) {
	if cid == "" || room == "" {
		return JoinResult{}, fmt.Errorf("join: empty connection or room id: %w", domain.ErrMalformed)
	}
	if err := user.Validate(); err != nil {
		return JoinResult{}, fmt.Errorf("join: %w: %w", domain.ErrMalformed, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[cid]
	if !ok {
		e = &sessionEntry{User: user}
		r.sessions[cid] = e
	}

	var res JoinResult
	if e.Part != nil && e.Part.RoomID == room {
		res.Rejoined = true
	} else {
		if e.Part != nil {
			left, _ := r.leaveLocked(cid)
			res.Left = &left
		}
		r.seq++
		e.User = user
		e.Part = domain.NewParticipant(cid, room, user, r.now())
		e.joinSeq = r.seq
		members, ok := r.rooms[room]
		if !ok {
			members = make(map[domain.ConnID]struct{})
			r.rooms[room] = members
		}
		members[cid] = struct{}{}
	}

	res.Self = e.Part.Clone()
	for _, p := range r.membersLocked(room) {
		if p.ConnID != cid {
			res.Others = append(res.Others, p)
		}
	}
	res.Count = len(r.rooms[room])

	log.Info().Str("module", "app.registry").Str("sid", string(cid)).Str("room", string(room)).Int("count", res.Count).Msg("joined room")
	return res, nil
}

// Leave removes the participant of cid. Absent participants are a no-op.
func (r *Registry) Leave(cid domain.ConnID) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(cid)
}

func (r *Registry) leaveLocked(cid domain.ConnID) (LeaveResult, bool) {
	e, ok := r.sessions[cid]
	if !ok || e.Part == nil {
		return LeaveResult{}, false
	}
	p := e.Part.Clone()
	e.Part = nil
	e.joinSeq = 0

	members := r.rooms[p.RoomID]
	delete(members, cid)
	remaining := len(members)
	if remaining == 0 {
		delete(r.rooms, p.RoomID)
	}
	log.Info().Str("module", "app.registry").Str("sid", string(cid)).Str("room", string(p.RoomID)).Int("count", remaining).Msg("left room")
	return LeaveResult{Participant: p, Remaining: remaining}, true
}

// UpdateFlags applies a partial flag update. Muting clears speaking in the same
// step. Speaking while muted is ignored.
func (r *Registry) UpdateFlags(cid domain.ConnID, upd FlagUpdate) (domain.Participant, FlagChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[cid]
	if !ok || e.Part == nil {
		return domain.Participant{}, FlagChange{}, domain.ErrNotAMember
	}
	p := e.Part
	now := r.now()
	var ch FlagChange

	if upd.IsMuted != nil && *upd.IsMuted != p.IsMuted {
		p.IsMuted = *upd.IsMuted
		p.LastMuteChange = &now
		ch.Muted = true
		if p.IsMuted && p.IsSpeaking {
			p.IsSpeaking = false
			ch.Speaking = true
		}
	}
	if upd.IsSpeaking != nil && !p.IsMuted {
		if *upd.IsSpeaking {
			p.LastSpeakingTime = &now
		}
		if *upd.IsSpeaking != p.IsSpeaking {
			p.IsSpeaking = *upd.IsSpeaking
			ch.Speaking = true
		}
	}

	if ch.Any() {
		log.Debug().Str("module", "app.registry").Str("sid", string(cid)).
			Bool("muted", p.IsMuted).Bool("speaking", p.IsSpeaking).Msg("flags updated")
	}
	return p.Clone(), ch, nil
}

// MembersOf returns copies of the room's participants in join order.
func (r *Registry) MembersOf(room domain.RoomID) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked(room)
}

func (r *Registry) membersLocked(room domain.RoomID) []domain.Participant {
	ids := r.rooms[room]
	type ordered struct {
		seq uint64
		p   domain.Participant
	}
	tmp := make([]ordered, 0, len(ids))
	for cid := range ids {
		e := r.sessions[cid]
		tmp = append(tmp, ordered{seq: e.joinSeq, p: e.Part.Clone()})
	}
	sort.Slice(tmp, func(i, j int) bool { return tmp[i].seq < tmp[j].seq })
	out := make([]domain.Participant, len(tmp))
	for i := range tmp {
		out[i] = tmp[i].p
	}
	return out
}

// Count is len(MembersOf(room)) without the copies.
func (r *Registry) Count(room domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

func (r *Registry) RoomOf(cid domain.ConnID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[cid]
	if !ok || e.Part == nil {
		return "", false
	}
	return e.Part.RoomID, true
}

// SameRoom reports whether both connections are members of one room.
func (r *Registry) SameRoom(a, b domain.ConnID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ea, ok := r.sessions[a]
	if !ok || ea.Part == nil {
		return "", false
	}
	eb, ok := r.sessions[b]
	if !ok || eb.Part == nil {
		return "", false
	}
	if ea.Part.RoomID != eb.Part.RoomID {
		return "", false
	}
	return ea.Part.RoomID, true
}

// HasUser reports whether another connection of user is still in room.
func (r *Registry) HasUser(room domain.RoomID, user domain.UserID, except domain.ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for cid := range r.rooms[room] {
		if cid != except && r.sessions[cid].User.ID == user {
			return true
		}
	}
	return false
}

// Rooms lists non-empty rooms with their derived counts.
func (r *Registry) Rooms() []domain.RoomStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RoomStatus, 0, len(r.rooms))
	for id, members := range r.rooms {
		out = append(out, domain.RoomStatus{RoomID: id, ParticipantCount: len(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// recipient is a fan-out target captured under the registry lock.
type recipient struct {
	ConnID domain.ConnID
	Signal core.SignalConnection
}

func (r *Registry) recipients(room domain.RoomID, except domain.ConnID) []recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]recipient, 0, len(r.rooms[room]))
	for cid := range r.rooms[room] {
		if cid == except {
			continue
		}
		if sig := r.sessions[cid].Signal; sig != nil {
			out = append(out, recipient{ConnID: cid, Signal: sig})
		}
	}
	return out
}

func (r *Registry) signalOf(cid domain.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[cid]
	if !ok || e.Signal == nil {
		return nil, false
	}
	return e.Signal, true
}

func (r *Registry) Cancel(cid domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.sessions[cid]
	var cancel context.CancelFunc
	if ok {
		cancel = e.Cancel
	}
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if cancel != nil {
		cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(cid)).Msg("canceled session")
	return true
}
