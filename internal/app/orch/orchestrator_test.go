package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/mustafaciftc/sesli-sohbet/internal/admission"
	"github.com/mustafaciftc/sesli-sohbet/internal/app"
	"github.com/mustafaciftc/sesli-sohbet/internal/core"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/history"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
	"go.uber.org/mock/gomock"
)

type recConn struct {
	mu     sync.Mutex
	frames []map[string]any
}

func (c *recConn) TrySend(f core.Frame) error {
	var m map[string]any
	if err := json.Unmarshal(f, &m); err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, m)
	c.mu.Unlock()
	return nil
}

func (c *recConn) Close() {}

func (c *recConn) ofType(typ string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

func (c *recConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i], _ = f["type"].(string)
	}
	return out
}

func (c *recConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// lastCount returns the participantCount of the last status update for room.
func (c *recConn) lastCount(room domain.RoomID) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		f := c.frames[i]
		if f["type"] == protocol.TypeRoomStatus && f["roomId"] == string(room) {
			return int(f["participantCount"].(float64)), true
		}
	}
	return 0, false
}

type fixture struct {
	o     *Orchestrator
	adm   *admission.MemoryStore
	conns map[domain.ConnID]*recConn
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	adm := admission.NewMemoryStore(capacity)
	return &fixture{
		o:     New(app.NewRegistry(), adm, WithHistory(history.NewMemoryStore(0))),
		adm:   adm,
		conns: make(map[domain.ConnID]*recConn),
	}
}

func (f *fixture) connect(cid domain.ConnID) *recConn {
	c := &recConn{}
	f.conns[cid] = c
	f.o.Connect(cid, domain.User{ID: domain.UserID("u-" + cid), Username: string(cid)}, c, nil)
	return c
}

func TestConnectSendsOwnID(t *testing.T) {
	f := newFixture(t, 10)
	c := f.connect("a")
	got := c.ofType(protocol.TypeConnected)
	if len(got) != 1 || got[0]["socketId"] != "a" || got[0]["userId"] != "u-a" {
		t.Fatalf("unexpected connected event %v", got)
	}
}

func TestJoinFanout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	a, b := f.connect("a"), f.connect("b")

	if _, err := f.o.Join(ctx, "a", "room"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	a.reset()
	res, err := f.o.Join(ctx, "b", "room")
	if err != nil {
		t.Fatalf("join b: %v", err)
	}
	if len(res.Others) != 1 || res.Others[0].ConnID != "a" {
		t.Fatalf("others = %+v", res.Others)
	}

	if got := a.types(); len(got) != 2 || got[0] != protocol.TypeUserJoined || got[1] != protocol.TypeRoomStatus {
		t.Fatalf("existing member got %v", got)
	}
	joined := a.ofType(protocol.TypeUserJoined)[0]
	if joined["socketId"] != "b" || joined["userId"] != "u-b" || joined["isMuted"] != false {
		t.Fatalf("user_joined payload %v", joined)
	}

	users := b.ofType(protocol.TypeRoomUsers)
	if len(users) != 1 {
		t.Fatalf("joiner got %v", b.types())
	}
	list := users[0]["users"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["socketId"] != "a" {
		t.Fatalf("snapshot must exclude the joiner: %v", list)
	}
	if len(b.ofType(protocol.TypeUserJoined)) != 0 {
		t.Fatal("joiner received its own user_joined")
	}
	if n, _ := b.lastCount("room"); n != 2 {
		t.Fatalf("joiner count = %d", n)
	}
}

// seqConn appends "<name>:<type>" to a log shared by every connection, so
// the test sees the order frames were queued across recipients.
type seqConn struct {
	name string
	mu   *sync.Mutex
	log  *[]string
}

func (c *seqConn) TrySend(f core.Frame) error {
	var env protocol.Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return err
	}
	c.mu.Lock()
	*c.log = append(*c.log, c.name+":"+env.Type)
	c.mu.Unlock()
	return nil
}

func (c *seqConn) Close() {}

func TestMembersHearJoinBeforeJoinerSnapshot(t *testing.T) {
	ctx := context.Background()
	o := New(app.NewRegistry(), admission.NewMemoryStore(10))
	var mu sync.Mutex
	var queued []string
	for _, id := range []domain.ConnID{"a", "b"} {
		o.Connect(id, domain.User{ID: domain.UserID("u-" + id), Username: string(id)},
			&seqConn{name: string(id), mu: &mu, log: &queued}, nil)
	}
	_, _ = o.Join(ctx, "a", "room")
	mu.Lock()
	queued = nil
	mu.Unlock()
	_, _ = o.Join(ctx, "b", "room")

	mu.Lock()
	defer mu.Unlock()
	pos := make(map[string]int)
	for i, e := range queued {
		if _, ok := pos[e]; !ok {
			pos[e] = i
		}
	}
	joined, okJ := pos["a:"+protocol.TypeUserJoined]
	snap, okS := pos["b:"+protocol.TypeRoomUsers]
	if !okJ || !okS || joined > snap {
		t.Fatalf("queue order %v", queued)
	}
}

func TestCapacityScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	a, b, c := f.connect("a"), f.connect("b"), f.connect("c")

	if _, err := f.o.Join(ctx, "a", "room"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if n, _ := a.lastCount("room"); n != 1 {
		t.Fatalf("count after a = %d", n)
	}
	if _, err := f.o.Join(ctx, "b", "room"); err != nil {
		t.Fatalf("join b: %v", err)
	}
	if _, err := f.o.Join(ctx, "c", "room"); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("join c: expected ErrRoomFull, got %v", err)
	}

	if got := f.o.Registry.Count("room"); got != 2 {
		t.Fatalf("count = %d after rejected join", got)
	}
	for id, conn := range map[string]*recConn{"a": a, "b": b} {
		if n, _ := conn.lastCount("room"); n != 2 {
			t.Fatalf("%s saw count %d", id, n)
		}
	}
	if len(c.ofType(protocol.TypeRoomUsers)) != 0 {
		t.Fatal("rejected joiner got a snapshot")
	}
}

func TestMoveAnnouncesLeaveToOldRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	a, b := f.connect("a"), f.connect("b")
	f.adm.SetCapacity("old", 2)

	_, _ = f.o.Join(ctx, "a", "old")
	_, _ = f.o.Join(ctx, "b", "old")
	b.reset()

	res, err := f.o.Join(ctx, "a", "new")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if res.Left == nil || res.Left.Participant.RoomID != "old" {
		t.Fatalf("expected implicit leave, got %+v", res.Left)
	}
	if got := b.types(); len(got) != 2 || got[0] != protocol.TypeUserLeft || got[1] != protocol.TypeRoomStatus {
		t.Fatalf("old room member got %v", got)
	}
	if n, _ := b.lastCount("old"); n != 1 {
		t.Fatalf("old room count = %d", n)
	}
	if n, _ := a.lastCount("new"); n != 1 {
		t.Fatalf("new room count = %d", n)
	}

	// a's slot in "old" was released, so a third user fits next to b.
	f.connect("c")
	if _, err := f.o.Join(ctx, "c", "old"); err != nil {
		t.Fatalf("old room slot not released: %v", err)
	}
}

func TestLeaveIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.connect("a")
	b := f.connect("b")
	_, _ = f.o.Join(ctx, "a", "room")
	_, _ = f.o.Join(ctx, "b", "room")
	b.reset()

	if _, ok := f.o.Leave(ctx, "a"); !ok {
		t.Fatal("first leave removed nothing")
	}
	if _, ok := f.o.Leave(ctx, "a"); ok {
		t.Fatal("second leave removed something")
	}
	f.o.Disconnect(ctx, "a")
	f.o.Disconnect(ctx, "a")

	if n := len(b.ofType(protocol.TypeUserLeft)); n != 1 {
		t.Fatalf("expected one user_left, got %d", n)
	}
	if n, _ := b.lastCount("room"); n != 1 {
		t.Fatalf("count = %d", n)
	}
}

func TestMuteWhileSpeaking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	a, b := f.connect("a"), f.connect("b")
	_, _ = f.o.Join(ctx, "a", "room")
	_, _ = f.o.Join(ctx, "b", "room")

	if err := f.o.SetSpeaking("a", true); err != nil {
		t.Fatalf("speak: %v", err)
	}
	for _, c := range []*recConn{a, b} {
		sp := c.ofType(protocol.TypeUserSpeak)
		if len(sp) != 1 || sp[0]["isSpeaking"] != true || sp[0]["socketId"] != "a" {
			t.Fatalf("user_speaking not broadcast to whole room: %v", sp)
		}
	}

	if err := f.o.SetMuted("a", true); err != nil {
		t.Fatalf("mute: %v", err)
	}
	p := f.o.Registry.MembersOf("room")[0]
	if !p.IsMuted || p.IsSpeaking {
		t.Fatalf("participant after mute %+v", p)
	}
	for _, c := range []*recConn{a, b} {
		m := c.ofType(protocol.TypeUserMuted)
		if len(m) != 1 || m[0]["isMuted"] != true {
			t.Fatalf("user_muted not broadcast: %v", m)
		}
	}
}

func TestRepeatedStartSpeakingIsRebroadcast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.connect("a")
	b := f.connect("b")
	_, _ = f.o.Join(ctx, "a", "room")
	_, _ = f.o.Join(ctx, "b", "room")

	for i := 0; i < 2; i++ {
		if err := f.o.SetSpeaking("a", true); err != nil {
			t.Fatalf("speak: %v", err)
		}
	}
	if n := len(b.ofType(protocol.TypeUserSpeak)); n != 2 {
		t.Fatalf("user_speaking broadcast %d times", n)
	}

	_ = f.o.SetSpeaking("a", false)
	_ = f.o.SetSpeaking("a", false)
	if n := len(b.ofType(protocol.TypeUserSpeak)); n != 3 {
		t.Fatalf("repeated stop broadcast, total %d", n)
	}
}

func TestSpeakWhileMutedIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	a := f.connect("a")
	_, _ = f.o.Join(ctx, "a", "room")
	_ = f.o.SetMuted("a", true)
	a.reset()

	if err := f.o.SetSpeaking("a", true); err != nil {
		t.Fatalf("speak while muted: %v", err)
	}
	if p := f.o.Registry.MembersOf("room")[0]; p.IsSpeaking {
		t.Fatal("muted participant became speaking")
	}
	if len(a.frames) != 0 {
		t.Fatalf("ignored update was broadcast: %v", a.types())
	}
}

func TestFlagsRequireMembership(t *testing.T) {
	f := newFixture(t, 10)
	f.connect("a")
	if err := f.o.SetMuted("a", true); !errors.Is(err, domain.ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
	if err := f.o.SetSpeaking("a", true); !errors.Is(err, domain.ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	a, b := f.connect("a"), f.connect("b")
	f.connect("outsider")
	_, _ = f.o.Join(ctx, "a", "room")
	_, _ = f.o.Join(ctx, "b", "room")

	var ids []string
	for i := 0; i < 5; i++ {
		msg, err := f.o.SendMessage(ctx, "a", protocol.SendMessage{RoomID: "room", Content: fmt.Sprintf(" hi %d ", i)})
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		if msg.Type != domain.MessageText || msg.Content != fmt.Sprintf("hi %d", i) {
			t.Fatalf("unexpected message %+v", msg)
		}
		ids = append(ids, msg.ID)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not increasing: %v", ids)
		}
	}
	for _, c := range []*recConn{a, b} {
		if n := len(c.ofType(protocol.TypeNewMessage)); n != 5 {
			t.Fatalf("expected 5 new_message including sender, got %d", n)
		}
	}
	stored, _ := f.o.History.Recent(ctx, "room", 0)
	if len(stored) != 5 || stored[4].ID != ids[4] {
		t.Fatalf("history = %+v", stored)
	}

	bad := []struct {
		cid  domain.ConnID
		req  protocol.SendMessage
		want error
	}{
		{"outsider", protocol.SendMessage{Content: "x"}, domain.ErrNotAMember},
		{"a", protocol.SendMessage{RoomID: "other", Content: "x"}, domain.ErrNotAMember},
		{"a", protocol.SendMessage{Content: "   "}, domain.ErrMalformed},
		{"a", protocol.SendMessage{Content: "x", MessageType: "system"}, domain.ErrMalformed},
	}
	for _, tc := range bad {
		if _, err := f.o.SendMessage(ctx, tc.cid, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%+v: expected %v, got %v", tc.req, tc.want, err)
		}
	}
}

func TestCountMatchesMembersUnderRandomOps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	rooms := []domain.RoomID{"r1", "r2"}
	ids := []domain.ConnID{"a", "b", "c", "d", "e", "g"}
	for _, id := range ids {
		f.connect(id)
	}

	rng := rand.New(rand.NewSource(7))
	for step := 0; step < 300; step++ {
		cid := ids[rng.Intn(len(ids))]
		switch rng.Intn(3) {
		case 0, 1:
			_, _ = f.o.Join(ctx, cid, rooms[rng.Intn(len(rooms))])
		case 2:
			f.o.Leave(ctx, cid)
		}

		for _, room := range rooms {
			members := f.o.Registry.MembersOf(room)
			for _, p := range members {
				n, ok := f.conns[p.ConnID].lastCount(room)
				if !ok || n != len(members) {
					t.Fatalf("step %d: %s sees count %d for %s, members=%d", step, p.ConnID, n, room, len(members))
				}
			}
			if len(members) > 4 {
				t.Fatalf("step %d: capacity exceeded in %s", step, room)
			}
		}
	}
}

func TestJoinWithMockAdmission(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	adm := admission.NewMockStore(ctrl)
	o := New(app.NewRegistry(), adm)
	o.Connect("a", domain.User{ID: "ua", Username: "a"}, &recConn{}, nil)

	gomock.InOrder(
		adm.EXPECT().Admit(gomock.Any(), domain.RoomID("full"), domain.UserID("ua")).Return(domain.ErrRoomFull),
		adm.EXPECT().Admit(gomock.Any(), domain.RoomID("ok"), domain.UserID("ua")).Return(nil),
		adm.EXPECT().Release(gomock.Any(), domain.RoomID("ok"), domain.UserID("ua")).Return(nil).Times(1),
	)

	if _, err := o.Join(ctx, "a", "full"); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
	if o.Registry.Count("full") != 0 {
		t.Fatal("rejected join reached the registry")
	}
	if _, err := o.Join(ctx, "a", "ok"); err != nil {
		t.Fatalf("join: %v", err)
	}
	o.Leave(ctx, "a")
	o.Leave(ctx, "a")
	o.Disconnect(ctx, "a")
}

func TestJoinUnknownConnection(t *testing.T) {
	ctrl := gomock.NewController(t)
	adm := admission.NewMockStore(ctrl)
	o := New(app.NewRegistry(), adm)
	if _, err := o.Join(context.Background(), "ghost", "room"); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}
