package orch

import (
	"context"
	"fmt"

	"github.com/mustafaciftc/sesli-sohbet/internal/app"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Join admits cid into room. A connection already in another room is moved:
// the old room sees it leave before the new room sees it join.
func (o *Orchestrator) Join(ctx context.Context, cid domain.ConnID, room domain.RoomID) (app.JoinResult, error) {
	sess, ok := o.Registry.GetSession(cid)
	if !ok {
		return app.JoinResult{}, domain.ErrNotAuthenticated
	}
	if err := o.Admission.Admit(ctx, room, sess.User.ID); err != nil {
		log.Info().Err(err).Str("module", "orch").Str("sid", string(cid)).Str("room", string(room)).Msg("join rejected")
		return app.JoinResult{}, err
	}

	o.mu.Lock()
	res, err := o.join(cid, room)
	o.mu.Unlock()

	if err != nil {
		o.release(ctx, room, sess.User.ID, cid)
		return app.JoinResult{}, err
	}
	if res.Left != nil {
		o.release(ctx, res.Left.Participant.RoomID, sess.User.ID, cid)
	}
	return res, nil
}

func (o *Orchestrator) join(cid domain.ConnID, room domain.RoomID) (app.JoinResult, error) {
	// The connection may have gone away while admission ran.
	sess, ok := o.Registry.GetSession(cid)
	if !ok {
		return app.JoinResult{}, fmt.Errorf("join after disconnect: %w", domain.ErrNotAuthenticated)
	}
	res, err := o.Registry.Join(cid, room, sess.User)
	if err != nil {
		return app.JoinResult{}, err
	}

	if res.Left != nil {
		o.announceLeave(*res.Left)
	}

	// Members hear about the joiner before the joiner can offer to them.
	if !res.Rejoined {
		o.Fanout.ToRoom(room, cid, protocol.UserJoined{Type: protocol.TypeUserJoined, UserInfo: protocol.InfoOf(res.Self)})
	}

	users := make([]protocol.UserInfo, 0, len(res.Others))
	for _, p := range res.Others {
		users = append(users, protocol.InfoOf(p))
	}
	o.Reply(cid, protocol.RoomUsers{Type: protocol.TypeRoomUsers, RoomID: room, Users: users})

	if res.Rejoined {
		o.Reply(cid, o.statusEvent(room, res.Count))
		return res, nil
	}
	o.Fanout.ToRoom(room, "", o.statusEvent(room, res.Count))
	return res, nil
}

// Leave removes cid from its room. Calling it again is a no-op.
func (o *Orchestrator) Leave(ctx context.Context, cid domain.ConnID) (app.LeaveResult, bool) {
	o.mu.Lock()
	res, ok := o.Registry.Leave(cid)
	if ok {
		o.announceLeave(res)
	}
	o.mu.Unlock()

	if ok {
		o.release(ctx, res.Participant.RoomID, res.Participant.UserID, cid)
	}
	return res, ok
}

// Disconnect runs the leave path and forgets the connection. Idempotent.
func (o *Orchestrator) Disconnect(ctx context.Context, cid domain.ConnID) {
	o.mu.Lock()
	res, ok := o.Registry.Unbind(cid)
	if ok {
		o.announceLeave(res)
	}
	o.mu.Unlock()

	if ok {
		o.release(ctx, res.Participant.RoomID, res.Participant.UserID, cid)
	}
}

// EvictRoom disconnects every member of room.
func (o *Orchestrator) EvictRoom(room domain.RoomID) {
	for _, p := range o.Registry.MembersOf(room) {
		o.Kick(p.ConnID)
	}
}

func (o *Orchestrator) announceLeave(res app.LeaveResult) {
	p := res.Participant
	o.Fanout.ToRoom(p.RoomID, p.ConnID, protocol.UserLeft{
		Type:     protocol.TypeUserLeft,
		UserID:   p.UserID,
		Username: p.Username,
		SocketID: p.ConnID,
	})
	o.Fanout.ToRoom(p.RoomID, p.ConnID, o.statusEvent(p.RoomID, res.Remaining))
}

// release frees the admission slot unless another connection of the same
// user still holds the room.
func (o *Orchestrator) release(ctx context.Context, room domain.RoomID, user domain.UserID, cid domain.ConnID) {
	if o.Registry.HasUser(room, user, cid) {
		return
	}
	if err := o.Admission.Release(ctx, room, user); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(room)).Str("user", string(user)).Msg("release slot")
	}
}
