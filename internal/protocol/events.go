// Package protocol holds the event names and payloads of the signaling channel.
// Every frame is a flat JSON object carrying a "type" field.
package protocol

// Client to server.
const (
	TypeJoinRoom     = "join_room"
	TypeLeaveRoom    = "leave_room"
	TypeSendMessage  = "send_message"
	TypeStartSpeak   = "start_speaking"
	TypeStopSpeak    = "stop_speaking"
	TypeToggleMute   = "toggle_mute"
	TypeOffer        = "webrtc_offer"
	TypeAnswer       = "webrtc_answer"
	TypeICECandidate = "webrtc_ice_candidate"
	TypePing         = "ping"
)

// Server to client.
const (
	TypeConnected  = "connected"
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	TypeRoomUsers  = "room_users"
	TypeRoomStatus = "room_status_update"
	TypeUserSpeak  = "user_speaking"
	TypeUserMuted  = "user_muted"
	TypeNewMessage = "new_message"
	TypePong       = "pong"
	TypeError      = "error"
)

// IsSignaling reports whether t is one of the relayed negotiation kinds.
func IsSignaling(t string) bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}
