package orch

import (
	"context"
	"sync"
	"time"

	"github.com/mustafaciftc/sesli-sohbet/internal/admission"
	"github.com/mustafaciftc/sesli-sohbet/internal/app"
	"github.com/mustafaciftc/sesli-sohbet/internal/core"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/history"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Orchestrator sequences admission, registry mutations and their fan-out.
// Membership and flag changes run under mu together with the enqueue of the
// events they produce, so every member sees them in commit order.
type Orchestrator struct {
	Registry  *app.Registry
	Fanout    *app.Fanout
	Relay     *app.Relay
	Admission admission.Store
	History   history.Store

	MaxMessageLen int

	mu  sync.Mutex
	now func() time.Time
}

type Option func(*Orchestrator)

func WithHistory(h history.Store) Option {
	return func(o *Orchestrator) { o.History = h }
}

func WithPolicy(p app.Policy) Option {
	return func(o *Orchestrator) { o.Fanout.Policy = p }
}

func WithMaxMessageLen(n int) Option {
	return func(o *Orchestrator) { o.MaxMessageLen = n }
}

func New(reg *app.Registry, adm admission.Store, opts ...Option) *Orchestrator {
	fan := app.NewFanout(reg, app.SimplePolicy{})
	o := &Orchestrator{
		Registry:      reg,
		Fanout:        fan,
		Relay:         app.NewRelay(fan),
		Admission:     adm,
		History:       history.NewMemoryStore(0),
		MaxMessageLen: domain.MaxMessageLen,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Connect registers an authenticated connection and tells it its own id.
func (o *Orchestrator) Connect(cid domain.ConnID, user domain.User, sig core.SignalConnection, cancel context.CancelFunc) {
	o.Registry.BindSignal(cid, user, sig, cancel)
	_ = o.Fanout.ToConn(cid, protocol.Connected{
		Type:     protocol.TypeConnected,
		SocketID: cid,
		UserID:   user.ID,
		Username: user.Username,
	})
}

// Kick closes the transport of cid. The read loop then runs Disconnect.
func (o *Orchestrator) Kick(cid domain.ConnID) bool {
	return o.Registry.Cancel(cid)
}

// Reply sends v to a single connection, typically an error or pong.
func (o *Orchestrator) Reply(cid domain.ConnID, v any) {
	if err := o.Fanout.ToConn(cid, v); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(cid)).Msg("reply dropped")
	}
}

func (o *Orchestrator) statusEvent(room domain.RoomID, count int) protocol.RoomStatus {
	return protocol.RoomStatus{
		Type:             protocol.TypeRoomStatus,
		RoomID:           room,
		ParticipantCount: count,
		Timestamp:        o.now().UTC(),
	}
}

// Status reports the live member count of room, derived from the registry.
func (o *Orchestrator) Status(room domain.RoomID) domain.RoomStatus {
	return domain.RoomStatus{RoomID: room, ParticipantCount: o.Registry.Count(room)}
}
