package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

const frameDuration = 20 * time.Millisecond

// opusSilence is one 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Microphone is the local audio track. Without a capture device it sends
// Opus silence so peers still see a live sender.
type Microphone struct {
	track  *webrtc.TrackLocalStaticSample
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func NewMicrophone(ctx context.Context, streamID string) (*Microphone, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID,
	)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	m := &Microphone{track: track, cancel: cancel, done: make(chan struct{})}
	go m.loop(ctx)
	return m, nil
}

func (m *Microphone) ID() string { return m.track.ID() }

// Stop ends the sample loop. It is safe to call more than once.
func (m *Microphone) Stop() {
	m.once.Do(func() {
		m.cancel()
		<-m.done
		log.Debug().Str("module", "webrtc").Str("track_id", m.track.ID()).Msg("microphone stopped")
	})
}

func (m *Microphone) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.track.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration}); err != nil {
				log.Warn().Err(err).Str("module", "webrtc").Msg("write sample")
				return
			}
		}
	}
}
