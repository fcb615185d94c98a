// Package admission decides atomically whether a user may enter a room.
// It is consulted once per join and does not track live presence.
package admission

//go:generate mockgen -source=store.go -destination=mock_store.go -package=admission

import (
	"context"

	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
)

// DefaultCapacity matches the room default of the room service.
const DefaultCapacity = 10

// Store is the durable room-capacity check. Admit must decide and record the
// slot in one atomic step. Admitting a user already holding a slot succeeds.
type Store interface {
	Admit(ctx context.Context, room domain.RoomID, user domain.UserID) error
	Release(ctx context.Context, room domain.RoomID, user domain.UserID) error
	Capacity(ctx context.Context, room domain.RoomID) (int, error)
}
