package rtc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mustafaciftc/sesli-sohbet/internal/client/peer"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

func TestMapState(t *testing.T) {
	tests := []struct {
		in   webrtc.PeerConnectionState
		want peer.State
	}{
		{webrtc.PeerConnectionStateNew, peer.StateConnecting},
		{webrtc.PeerConnectionStateConnecting, peer.StateConnecting},
		{webrtc.PeerConnectionStateConnected, peer.StateConnected},
		{webrtc.PeerConnectionStateDisconnected, peer.StateDisconnected},
		{webrtc.PeerConnectionStateFailed, peer.StateFailed},
		{webrtc.PeerConnectionStateClosed, peer.StateClosed},
	}
	for _, tt := range tests {
		got, ok := MapState(tt.in)
		if !ok || got != tt.want {
			t.Errorf("MapState(%v) = %v, %v", tt.in, got, ok)
		}
	}
	if _, ok := MapState(webrtc.PeerConnectionStateUnknown); ok {
		t.Error("unknown state mapped")
	}
}

func TestOfferCarriesMicrophone(t *testing.T) {
	f, err := NewFactory(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	conn, err := f.New("remote")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer conn.Close()

	mic, err := NewMicrophone(context.Background(), "test")
	if err != nil {
		t.Fatalf("mic: %v", err)
	}
	defer mic.Stop()
	if err := conn.AddTrack(mic); err != nil {
		t.Fatalf("add track: %v", err)
	}

	raw, err := conn.CreateOffer(context.Background())
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if desc.Type != webrtc.SDPTypeOffer || desc.SDP == "" {
		t.Fatalf("offer = %+v", desc)
	}
	if got := conn.Stats(); got.PacketsReceived != 0 {
		t.Fatalf("stats before connect = %+v", got)
	}
}

type plainTrack struct{}

func (plainTrack) ID() string { return "plain" }
func (plainTrack) Kind() string { return "audio" }

func TestAddTrackRejectsForeign(t *testing.T) {
	f, err := NewFactory(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	conn, err := f.New("remote")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer conn.Close()
	if err := conn.AddTrack(foreignTrack{}); err != ErrForeignTrack {
		t.Fatalf("err = %v", err)
	}
}

type foreignTrack struct{}

func (foreignTrack) ID() string { return "x" }
func (foreignTrack) Stop() {}

func TestSinkCountsAndDetach(t *testing.T) {
	s := NewSink()
	var hooked int
	s.OnPacket(func(_ domain.ConnID, _ *rtp.Packet) { hooked++ })

	s.Attach("r1", plainTrack{})
	pb := s.streams["r1"]
	s.record("r1", pb, &rtp.Packet{Header: rtp.Header{SequenceNumber: 7}, Payload: []byte{1, 2, 3}})

	got := s.Playbacks()["r1"]
	if got.Packets != 1 || got.Bytes != 3 || got.LastSeq != 7 || hooked != 1 {
		t.Fatalf("playback = %+v hooked=%d", got, hooked)
	}

	s.Detach("r1")
	s.Detach("r1")
	s.record("r1", pb, &rtp.Packet{Payload: []byte{1}})
	if len(s.Playbacks()) != 0 || hooked != 1 {
		t.Fatal("detached stream still recorded")
	}
}
