package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/mustafaciftc/sesli-sohbet/internal/client/peer"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"
)

// Playback is what the sink knows about one remote audio stream.
type Playback struct {
	TrackID    string
	Packets    uint64
	Bytes      uint64
	LastSeq    uint16
	LastPacket time.Time
}

type playback struct {
	Playback
	cancel context.CancelFunc
}

// Sink is the audio output of the client. It consumes remote RTP and keeps
// per-remote counters; decoding to a device is left to the host.
type Sink struct {
	mu      sync.Mutex
	streams map[domain.ConnID]*playback
	onRTP   func(domain.ConnID, *rtp.Packet)
}

func NewSink() *Sink {
	return &Sink{streams: make(map[domain.ConnID]*playback)}
}

// OnPacket registers a hook that sees every received packet.
func (s *Sink) OnPacket(fn func(domain.ConnID, *rtp.Packet)) {
	s.mu.Lock()
	s.onRTP = fn
	s.mu.Unlock()
}

// Attach replaces any earlier stream of remote.
func (s *Sink) Attach(remote domain.ConnID, track peer.RemoteTrack) {
	ctx, cancel := context.WithCancel(context.Background())
	pb := &playback{Playback: Playback{TrackID: track.ID()}, cancel: cancel}

	s.mu.Lock()
	if old, ok := s.streams[remote]; ok {
		old.cancel()
	}
	s.streams[remote] = pb
	s.mu.Unlock()

	log.Info().Str("module", "webrtc").Str("remote", string(remote)).Str("track_id", track.ID()).Msg("remote audio attached")
	if rt, ok := track.(*RemoteTrack); ok {
		go s.read(ctx, remote, pb, rt)
	}
}

func (s *Sink) Detach(remote domain.ConnID) {
	s.mu.Lock()
	pb, ok := s.streams[remote]
	delete(s.streams, remote)
	s.mu.Unlock()
	if !ok {
		return
	}
	pb.cancel()
	log.Info().Str("module", "webrtc").Str("remote", string(remote)).Msg("remote audio detached")
}

func (s *Sink) Playbacks() map[domain.ConnID]Playback {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.ConnID]Playback, len(s.streams))
	for id, pb := range s.streams {
		out[id] = pb.Playback
	}
	return out
}

func (s *Sink) read(ctx context.Context, remote domain.ConnID, pb *playback, rt *RemoteTrack) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := rt.track.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "webrtc").Str("remote", string(remote)).Msg("remote track ended")
			return
		}
		s.record(remote, pb, pkt)
	}
}

func (s *Sink) record(remote domain.ConnID, pb *playback, pkt *rtp.Packet) {
	s.mu.Lock()
	if s.streams[remote] != pb {
		s.mu.Unlock()
		return
	}
	pb.Packets++
	pb.Bytes += uint64(len(pkt.Payload))
	pb.LastSeq = pkt.SequenceNumber
	pb.LastPacket = time.Now()
	hook := s.onRTP
	s.mu.Unlock()
	if hook != nil {
		hook(remote, pkt)
	}
}
