package peer

import (
	"context"
	"encoding/json"

	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
)

// Stats are cumulative RTP counters of one connection.
type Stats struct {
	PacketsSent     uint64 `json:"packetsSent"`
	PacketsReceived uint64 `json:"packetsReceived"`
	BytesSent       uint64 `json:"bytesSent"`
	BytesReceived   uint64 `json:"bytesReceived"`
}

// LocalTrack is the microphone output shared by every connection.
type LocalTrack interface {
	ID() string
	Stop()
}

// RemoteTrack is audio arriving from a remote participant.
type RemoteTrack interface {
	ID() string
	Kind() string
}

// Conn is the media stack behind one record. SDP and candidates are opaque
// JSON blobs relayed as they are.
type Conn interface {
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	CreateAnswer(ctx context.Context) (json.RawMessage, error)
	SetRemoteDescription(sdp json.RawMessage) error
	// Rollback abandons a local offer that has not been answered.
	Rollback() error
	AddICECandidate(candidate json.RawMessage) error
	AddTrack(track LocalTrack) error
	Stats() Stats
	Close() error

	OnICECandidate(fn func(candidate json.RawMessage))
	OnStateChange(fn func(State))
	OnTrack(fn func(RemoteTrack))
}

type Factory interface {
	New(remote domain.ConnID) (Conn, error)
}

// Signaler delivers negotiation frames to the server.
type Signaler interface {
	Send(v any) error
}

// Output plays remote audio.
type Output interface {
	Attach(remote domain.ConnID, track RemoteTrack)
	Detach(remote domain.ConnID)
}
