package voice

import "fmt"

type OpID uint64

// Command is a local change applied before the server confirms it. apply
// returns the value it replaced so a rollback restores exactly that.
type Command interface {
	fmt.Stringer
	apply(s *Store) any
	restore(s *Store, prior any)
}

// CountDelta shifts the displayed participant count.
type CountDelta int

func (d CountDelta) String() string { return fmt.Sprintf("count%+d", int(d)) }

func (d CountDelta) apply(s *Store) any {
	prior := s.count
	s.count += int(d)
	return prior
}

func (d CountDelta) restore(s *Store, prior any) { s.count = prior.(int) }

// LocalMute sets the local mute flag. Muting also ends push-to-talk.
type LocalMute bool

func (m LocalMute) String() string { return fmt.Sprintf("mute=%t", bool(m)) }

type localFlags struct {
	muted, pushToTalk bool
}

func (m LocalMute) apply(s *Store) any {
	prior := localFlags{muted: s.localMuted, pushToTalk: s.pushToTalk}
	s.localMuted = bool(m)
	if s.localMuted {
		s.pushToTalk = false
	}
	return prior
}

func (m LocalMute) restore(s *Store, prior any) {
	p := prior.(localFlags)
	s.localMuted, s.pushToTalk = p.muted, p.pushToTalk
}

type pendingOp struct {
	cmd   Command
	prior any
}

// Begin applies cmd and remembers its prior value under a new op id.
func (s *Store) Begin(cmd Command) OpID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOp++
	op := s.nextOp
	s.pending[op] = pendingOp{cmd: cmd, prior: cmd.apply(s)}
	return op
}

// Confirm forgets the prior of op. Unknown ops are ignored.
func (s *Store) Confirm(op OpID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, op)
}

// Rollback restores the recorded prior of op. It reports false when op was
// already settled.
func (s *Store) Rollback(op OpID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[op]
	if !ok {
		return false
	}
	delete(s.pending, op)
	p.cmd.restore(s, p.prior)
	return true
}

func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
