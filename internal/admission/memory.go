package admission

import (
	"context"
	"sync"

	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
)

// MemoryStore keeps slots in process. Rooms are created on first use.
type MemoryStore struct {
	mu         sync.Mutex
	defaultCap int
	caps       map[domain.RoomID]int
	slots      map[domain.RoomID]map[domain.UserID]struct{}
}

func NewMemoryStore(defaultCap int) *MemoryStore {
	if defaultCap <= 0 {
		defaultCap = DefaultCapacity
	}
	return &MemoryStore{
		defaultCap: defaultCap,
		caps:       make(map[domain.RoomID]int),
		slots:      make(map[domain.RoomID]map[domain.UserID]struct{}),
	}
}

func (s *MemoryStore) SetCapacity(room domain.RoomID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps[room] = n
}

func (s *MemoryStore) Admit(_ context.Context, room domain.RoomID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, ok := s.slots[room]
	if !ok {
		users = make(map[domain.UserID]struct{})
		s.slots[room] = users
	}
	if _, ok := users[user]; ok {
		return nil
	}
	if len(users) >= s.capacityLocked(room) {
		return domain.ErrRoomFull
	}
	users[user] = struct{}{}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, room domain.RoomID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if users, ok := s.slots[room]; ok {
		delete(users, user)
		if len(users) == 0 {
			delete(s.slots, room)
		}
	}
	return nil
}

func (s *MemoryStore) Capacity(_ context.Context, room domain.RoomID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacityLocked(room), nil
}

func (s *MemoryStore) capacityLocked(room domain.RoomID) int {
	if n, ok := s.caps[room]; ok {
		return n
	}
	return s.defaultCap
}
