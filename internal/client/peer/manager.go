package peer

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/mustafaciftc/sesli-sohbet/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const DefaultGrace = 5 * time.Second

// Record is a copy of the bookkeeping for one remote participant.
type Record struct {
	Remote          domain.ConnID `json:"socketId"`
	UserID          domain.UserID `json:"userId"`
	State           State         `json:"state"`
	CreatedAt       time.Time     `json:"createdAt"`
	LastStateChange time.Time     `json:"lastStateChange"`
	Stats           Stats         `json:"stats"`
}

// Transition is delivered to listeners after every state change, in the
// order the changes were committed. A new record is announced with From and
// To both StateConnecting.
// Err is domain.ErrNegotiationFailed when the grace window ran out.
type Transition struct {
	Remote domain.ConnID
	UserID domain.UserID
	From   State
	To     State
	Err    error
}

type Listener func(Transition)

type record struct {
	Record
	conn     Conn
	offering bool
	remoteOK bool
	pending  []json.RawMessage
	attached bool
	timer    *time.Timer

	// renegotiate is set when the local track changed while an exchange
	// was in progress. A fresh offer follows once it settles.
	renegotiate bool
}

// effects are applied after the manager lock is released. Transitions are
// not among them: they go to the outbox at commit time.
type effects struct {
	signals []protocol.Signal
	detach  []domain.ConnID
	closing []Conn
}

type Option func(*Manager)

func WithGrace(d time.Duration) Option {
	return func(m *Manager) { m.grace = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the mesh of the local participant. The side with the lower
// connection id is the only one that opens a pair. Once a pair is
// established either side may offer again to renegotiate; on a collision
// the lower id keeps its offer and the other side rolls back.
type Manager struct {
	factory  Factory
	signaler Signaler
	output   Output
	grace    time.Duration
	now      func() time.Time

	mu         sync.Mutex
	self       domain.ConnID
	local      LocalTrack
	known      map[domain.ConnID]domain.UserID
	peers      map[domain.ConnID]*record
	tombstones map[domain.ConnID]struct{}
	listeners  map[uint64]Listener
	nextID     uint64

	outbox     []Transition
	delivering bool
}

func NewManager(f Factory, s Signaler, out Output, opts ...Option) *Manager {
	m := &Manager{
		factory:    f,
		signaler:   s,
		output:     out,
		grace:      DefaultGrace,
		now:        time.Now,
		known:      make(map[domain.ConnID]domain.UserID),
		peers:      make(map[domain.ConnID]*record),
		tombstones: make(map[domain.ConnID]struct{}),
		listeners:  make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetSelf records the id the server assigned to this client.
func (m *Manager) SetSelf(cid domain.ConnID) {
	m.mu.Lock()
	m.self = cid
	m.mu.Unlock()
}

// Listen registers fn for transitions. The returned func removes it.
func (m *Manager) Listen(fn Listener) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// SetLocalTrack attaches track to every open record and to records created
// later. Open records are renegotiated so the remote starts receiving it.
func (m *Manager) SetLocalTrack(ctx context.Context, track LocalTrack) {
	var fx effects
	m.mu.Lock()
	m.local = track
	for remote, rec := range m.peers {
		if err := rec.conn.AddTrack(track); err != nil {
			log.Warn().Err(err).Str("module", "client.peer").Str("remote", string(remote)).Msg("attach local track")
			continue
		}
		m.renegotiateLocked(ctx, rec, &fx)
	}
	m.mu.Unlock()
	m.apply(fx)
}

// Discover makes remote a known member of the room. A prior tombstone is
// cleared. If this side is the offerer for the pair, negotiation starts.
func (m *Manager) Discover(ctx context.Context, remote domain.ConnID, user domain.UserID) error {
	var fx effects
	err := func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		if remote == "" || remote == m.self {
			return nil
		}
		delete(m.tombstones, remote)
		m.known[remote] = user
		if rec, ok := m.peers[remote]; ok {
			rec.UserID = user
			return nil
		}
		if m.self == "" || !(m.self < remote) {
			return nil
		}

		rec, err := m.createLocked(remote, user, &fx)
		if err != nil {
			return err
		}
		sdp, err := rec.conn.CreateOffer(ctx)
		if err != nil {
			m.teardownLocked(rec, domain.ErrNegotiationFailed, &fx)
			return err
		}
		rec.offering = true
		fx.signals = append(fx.signals, protocol.Signal{Type: protocol.TypeOffer, Target: remote, SDP: sdp})
		return nil
	}()
	m.apply(fx)
	return err
}

// HandleOffer answers an offer from a known remote. When it collides with
// our own outstanding offer the lower id wins: its side drops the incoming
// offer, the other side rolls back and offers again after answering.
func (m *Manager) HandleOffer(ctx context.Context, sender domain.ConnID, sdp json.RawMessage) error {
	var fx effects
	err := func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		if !m.reachableLocked(sender) {
			log.Debug().Str("module", "client.peer").Str("remote", string(sender)).Msg("drop offer for unknown pair")
			return nil
		}
		rec, ok := m.peers[sender]
		if ok && rec.offering {
			if m.self < sender {
				log.Debug().Str("module", "client.peer").Str("remote", string(sender)).Msg("glare: keep own offer")
				return nil
			}
			if err := rec.conn.Rollback(); err != nil {
				m.teardownLocked(rec, domain.ErrNegotiationFailed, &fx)
				return err
			}
			log.Debug().Str("module", "client.peer").Str("remote", string(sender)).Msg("glare: rolled back own offer")
			rec.offering = false
			rec.renegotiate = true
		}
		if !ok {
			var err error
			if rec, err = m.createLocked(sender, m.known[sender], &fx); err != nil {
				return err
			}
		}
		if err := rec.conn.SetRemoteDescription(sdp); err != nil {
			m.teardownLocked(rec, domain.ErrNegotiationFailed, &fx)
			return err
		}
		rec.remoteOK = true
		answer, err := rec.conn.CreateAnswer(ctx)
		if err != nil {
			m.teardownLocked(rec, domain.ErrNegotiationFailed, &fx)
			return err
		}
		m.flushCandidatesLocked(rec)
		fx.signals = append(fx.signals, protocol.Signal{Type: protocol.TypeAnswer, Target: sender, SDP: answer})
		if rec.renegotiate {
			m.renegotiateLocked(ctx, rec, &fx)
		}
		return nil
	}()
	m.apply(fx)
	return err
}

// HandleAnswer completes our own offer. Answers for pairs we did not offer to are dropped.
func (m *Manager) HandleAnswer(ctx context.Context, sender domain.ConnID, sdp json.RawMessage) error {
	var fx effects
	err := func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		rec, ok := m.peers[sender]
		if !ok || !rec.offering {
			return nil
		}
		if err := rec.conn.SetRemoteDescription(sdp); err != nil {
			m.teardownLocked(rec, domain.ErrNegotiationFailed, &fx)
			return err
		}
		rec.offering = false
		rec.remoteOK = true
		m.flushCandidatesLocked(rec)
		if rec.renegotiate {
			m.renegotiateLocked(ctx, rec, &fx)
		}
		return nil
	}()
	m.apply(fx)
	return err
}

// HandleCandidate adds a remote ICE candidate, queueing it until the remote
// description is known.
func (m *Manager) HandleCandidate(sender domain.ConnID, candidate json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.peers[sender]
	if !ok {
		return nil
	}
	if !rec.remoteOK {
		rec.pending = append(rec.pending, candidate)
		return nil
	}
	return rec.conn.AddICECandidate(candidate)
}

// Remove tears down the record of a remote that left the room. Calling it
// for an absent remote only tombstones the pair.
func (m *Manager) Remove(remote domain.ConnID) {
	var fx effects
	m.mu.Lock()
	delete(m.known, remote)
	m.tombstones[remote] = struct{}{}
	if rec, ok := m.peers[remote]; ok {
		m.teardownLocked(rec, nil, &fx)
	}
	m.mu.Unlock()
	m.apply(fx)
}

// CloseAll tears down every record in parallel and forgets the room.
func (m *Manager) CloseAll() {
	var fx effects
	m.mu.Lock()
	for _, rec := range m.peers {
		m.tombstones[rec.Remote] = struct{}{}
		m.teardownLocked(rec, nil, &fx)
	}
	m.known = make(map[domain.ConnID]domain.UserID)
	m.mu.Unlock()
	m.apply(fx)
}

// Records returns copies of all records sorted by remote id.
func (m *Manager) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.peers))
	for _, rec := range m.peers {
		out = append(out, rec.Record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Remote < out[j].Remote })
	return out
}

func (m *Manager) Get(remote domain.ConnID) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.peers[remote]
	if !ok {
		return Record{}, false
	}
	return rec.Record, true
}

// RefreshStats pulls counters from every connected record.
func (m *Manager) RefreshStats() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.peers))
	for _, rec := range m.peers {
		if rec.State == StateConnected {
			rec.Stats = rec.conn.Stats()
		}
		out = append(out, rec.Record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Remote < out[j].Remote })
	return out
}

func (m *Manager) reachableLocked(remote domain.ConnID) bool {
	if _, dead := m.tombstones[remote]; dead {
		return false
	}
	_, ok := m.known[remote]
	return ok
}

func (m *Manager) createLocked(remote domain.ConnID, user domain.UserID, fx *effects) (*record, error) {
	conn, err := m.factory.New(remote)
	if err != nil {
		return nil, err
	}
	now := m.now()
	rec := &record{
		Record: Record{
			Remote:          remote,
			UserID:          user,
			State:           StateConnecting,
			CreatedAt:       now,
			LastStateChange: now,
		},
		conn: conn,
	}
	m.peers[remote] = rec
	m.emitLocked(Transition{Remote: remote, UserID: user, From: StateConnecting, To: StateConnecting})

	conn.OnICECandidate(func(c json.RawMessage) { m.onCandidate(rec, c) })
	conn.OnStateChange(func(s State) { m.onState(rec, s) })
	conn.OnTrack(func(t RemoteTrack) { m.onTrack(rec, t) })

	if m.local != nil {
		if err := conn.AddTrack(m.local); err != nil {
			log.Warn().Err(err).Str("module", "client.peer").Str("remote", string(remote)).Msg("attach local track")
		}
	}
	log.Debug().Str("module", "client.peer").Str("remote", string(remote)).Msg("record created")
	return rec, nil
}

// renegotiateLocked sends a fresh offer on an established pair, or defers
// it while an exchange is still in progress.
func (m *Manager) renegotiateLocked(ctx context.Context, rec *record, fx *effects) {
	if !rec.remoteOK || rec.offering {
		rec.renegotiate = true
		return
	}
	rec.renegotiate = false
	sdp, err := rec.conn.CreateOffer(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "client.peer").Str("remote", string(rec.Remote)).Msg("renegotiate")
		m.teardownLocked(rec, domain.ErrNegotiationFailed, fx)
		return
	}
	rec.offering = true
	fx.signals = append(fx.signals, protocol.Signal{Type: protocol.TypeOffer, Target: rec.Remote, SDP: sdp})
	log.Debug().Str("module", "client.peer").Str("remote", string(rec.Remote)).Msg("renegotiating")
}

func (m *Manager) flushCandidatesLocked(rec *record) {
	for _, c := range rec.pending {
		if err := rec.conn.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "client.peer").Str("remote", string(rec.Remote)).Msg("add queued candidate")
		}
	}
	rec.pending = nil
}

// current reports whether rec is still the live record of its remote.
func (m *Manager) current(rec *record) bool {
	return m.peers[rec.Remote] == rec
}

func (m *Manager) onCandidate(rec *record, c json.RawMessage) {
	m.mu.Lock()
	live := m.current(rec)
	m.mu.Unlock()
	if !live {
		return
	}
	m.apply(effects{signals: []protocol.Signal{{Type: protocol.TypeICECandidate, Target: rec.Remote, Candidate: c}}})
}

func (m *Manager) onTrack(rec *record, t RemoteTrack) {
	m.mu.Lock()
	if !m.current(rec) {
		m.mu.Unlock()
		return
	}
	rec.attached = true
	m.mu.Unlock()
	m.output.Attach(rec.Remote, t)
}

func (m *Manager) onState(rec *record, to State) {
	var fx effects
	m.mu.Lock()
	if !m.current(rec) {
		m.mu.Unlock()
		return
	}
	from := rec.State
	if from == to {
		m.mu.Unlock()
		return
	}
	if !CanTransition(from, to) {
		log.Warn().Str("module", "client.peer").Str("remote", string(rec.Remote)).
			Stringer("from", from).Stringer("to", to).Msg("ignored transition")
		m.mu.Unlock()
		return
	}
	rec.State = to
	rec.LastStateChange = m.now()
	m.emitLocked(Transition{Remote: rec.Remote, UserID: rec.UserID, From: from, To: to})

	switch {
	case to.unhealthy():
		m.armLocked(rec)
	case to == StateConnected:
		m.disarmLocked(rec)
	}
	m.mu.Unlock()
	m.apply(fx)
}

func (m *Manager) armLocked(rec *record) {
	m.disarmLocked(rec)
	rec.timer = time.AfterFunc(m.grace, func() { m.expire(rec) })
}

func (m *Manager) disarmLocked(rec *record) {
	if rec.timer != nil {
		rec.timer.Stop()
		rec.timer = nil
	}
}

// expire runs when the grace window of rec ran out.
func (m *Manager) expire(rec *record) {
	var fx effects
	m.mu.Lock()
	if !m.current(rec) || !rec.State.unhealthy() {
		m.mu.Unlock()
		return
	}
	log.Info().Str("module", "client.peer").Str("remote", string(rec.Remote)).
		Stringer("state", rec.State).Msg("not recovered within grace window")
	m.teardownLocked(rec, domain.ErrNegotiationFailed, &fx)
	m.mu.Unlock()
	m.apply(fx)
}

// teardownLocked removes rec and tombstones the pair. The connection is
// closed and audio detached once the lock is released.
func (m *Manager) teardownLocked(rec *record, cause error, fx *effects) {
	if !m.current(rec) {
		return
	}
	m.disarmLocked(rec)
	delete(m.peers, rec.Remote)
	m.tombstones[rec.Remote] = struct{}{}

	from := rec.State
	rec.State = StateClosed
	rec.LastStateChange = m.now()
	fx.closing = append(fx.closing, rec.conn)
	if rec.attached {
		rec.attached = false
		fx.detach = append(fx.detach, rec.Remote)
	}
	m.emitLocked(Transition{
		Remote: rec.Remote, UserID: rec.UserID, From: from, To: StateClosed, Err: cause,
	})
}

func (m *Manager) emitLocked(tr Transition) {
	m.outbox = append(m.outbox, tr)
}

func (m *Manager) apply(fx effects) {
	if len(fx.closing) > 0 {
		var wg conc.WaitGroup
		for _, c := range fx.closing {
			wg.Go(func() {
				if err := c.Close(); err != nil {
					log.Warn().Err(err).Str("module", "client.peer").Msg("close connection")
				}
			})
		}
		wg.Wait()
	}
	for _, remote := range fx.detach {
		m.output.Detach(remote)
	}
	for _, s := range fx.signals {
		if err := m.signaler.Send(s); err != nil {
			log.Warn().Err(err).Str("module", "client.peer").Str("type", s.Type).Msg("send signal")
		}
	}
	m.deliver()
}

// deliver hands queued transitions to listeners in commit order. The first
// caller to find the outbox idle drains it, including entries committed by
// other goroutines while it runs; those goroutines return at once.
func (m *Manager) deliver() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true
	for len(m.outbox) > 0 {
		batch := m.outbox
		m.outbox = nil
		ls := m.listenersLocked()
		m.mu.Unlock()
		for _, tr := range batch {
			for _, l := range ls {
				l(tr)
			}
		}
		m.mu.Lock()
	}
	m.delivering = false
	m.mu.Unlock()
}

func (m *Manager) listenersLocked() []Listener {
	ids := make([]uint64, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, m.listeners[id])
	}
	return ls
}
