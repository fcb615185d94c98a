// Package rtc implements the peer media stack on pion/webrtc.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mustafaciftc/sesli-sohbet/internal/client/peer"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrForeignTrack = errors.New("track was not created by this media stack")

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Factory builds one pion peer connection per remote participant.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewFactory(cfg webrtc.Configuration) (*Factory, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	return &Factory{api: webrtc.NewAPI(webrtc.WithMediaEngine(me)), cfg: cfg}, nil
}

func (f *Factory) New(remote domain.ConnID) (peer.Conn, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection for %s: %w", remote, err)
	}
	c := &Conn{pc: pc, remote: remote}
	c.bind()
	return c, nil
}

// Conn adapts a pion peer connection to peer.Conn.
type Conn struct {
	pc     *webrtc.PeerConnection
	remote domain.ConnID

	mu      sync.Mutex
	onICE   func(json.RawMessage)
	onState func(peer.State)
	onTrack func(peer.RemoteTrack)
}

func (c *Conn) bind() {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		raw, err := json.Marshal(cand.ToJSON())
		if err != nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(raw)
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		st, ok := MapState(s)
		if !ok {
			return
		}
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(st)
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("remote", string(c.remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("OnTrack received")
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(&RemoteTrack{track: track})
		}
	})
}

// MapState folds pion's connection states into the peer lifecycle.
func MapState(s webrtc.PeerConnectionState) (peer.State, bool) {
	switch s {
	case webrtc.PeerConnectionStateNew, webrtc.PeerConnectionStateConnecting:
		return peer.StateConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return peer.StateConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return peer.StateDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return peer.StateFailed, true
	case webrtc.PeerConnectionStateClosed:
		return peer.StateClosed, true
	}
	return 0, false
}

func (c *Conn) CreateOffer(context.Context) (json.RawMessage, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(c.pc.LocalDescription())
}

func (c *Conn) CreateAnswer(context.Context) (json.RawMessage, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(c.pc.LocalDescription())
}

func (c *Conn) SetRemoteDescription(raw json.RawMessage) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return fmt.Errorf("parse session description: %w", domain.ErrMalformed)
	}
	return c.pc.SetRemoteDescription(desc)
}

func (c *Conn) Rollback() error {
	return c.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

func (c *Conn) AddICECandidate(raw json.RawMessage) error {
	var ice webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &ice); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", domain.ErrMalformed)
	}
	return c.pc.AddICECandidate(ice)
}

// AddTrack sends the microphone on this connection. RTCP from the remote is
// drained so the interceptors keep working.
func (c *Conn) AddTrack(t peer.LocalTrack) error {
	mic, ok := t.(*Microphone)
	if !ok {
		return ErrForeignTrack
	}
	sender, err := c.pc.AddTrack(mic.track)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *Conn) Stats() peer.Stats {
	var out peer.Stats
	for _, s := range c.pc.GetStats() {
		switch st := s.(type) {
		case webrtc.InboundRTPStreamStats:
			out.PacketsReceived += uint64(st.PacketsReceived)
			out.BytesReceived += st.BytesReceived
		case webrtc.OutboundRTPStreamStats:
			out.PacketsSent += uint64(st.PacketsSent)
			out.BytesSent += st.BytesSent
		}
	}
	return out
}

func (c *Conn) Close() error {
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("remote", string(c.remote)).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Msg("closed")
	return nil
}

func (c *Conn) OnICECandidate(fn func(json.RawMessage)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Conn) OnStateChange(fn func(peer.State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Conn) OnTrack(fn func(peer.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

// RemoteTrack wraps an incoming pion track.
type RemoteTrack struct {
	track *webrtc.TrackRemote
}

func (t *RemoteTrack) ID() string { return t.track.ID() }
func (t *RemoteTrack) Kind() string { return t.track.Kind().String() }
