// Package history stores chat messages. The server assigns ids before Append.
package history

import (
	"context"
	"sync"

	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
)

type Store interface {
	Append(ctx context.Context, msg domain.Message) error
	Recent(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
}

// MemoryStore keeps the last Limit messages of every room.
type MemoryStore struct {
	mu    sync.RWMutex
	limit int
	rooms map[domain.RoomID][]domain.Message
}

func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = 200
	}
	return &MemoryStore{limit: limit, rooms: make(map[domain.RoomID][]domain.Message)}
}

func (s *MemoryStore) Append(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.rooms[msg.RoomID], msg)
	if len(msgs) > s.limit {
		msgs = append([]domain.Message(nil), msgs[len(msgs)-s.limit:]...)
	}
	s.rooms[msg.RoomID] = msgs
	return nil
}

// Recent returns up to limit messages, oldest first.
func (s *MemoryStore) Recent(_ context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.rooms[room]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.Message(nil), msgs...), nil
}
