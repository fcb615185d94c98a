package protocol

import (
	"encoding/json"
	"time"

	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
)

type Envelope struct {
	Type string `json:"type"`
}

type JoinRoom struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type LeaveRoom struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId,omitempty"`
}

type SendMessage struct {
	Type        string `json:"type"`
	RoomID      string `json:"roomId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType,omitempty"`
}

type ToggleMute struct {
	Type    string `json:"type"`
	IsMuted bool   `json:"isMuted"`
}

// Signal carries an opaque negotiation blob. Target is set by the sender,
// Sender is stamped by the server before delivery.
type Signal struct {
	Type      string          `json:"type"`
	Target    domain.ConnID   `json:"target,omitempty"`
	Sender    domain.ConnID   `json:"sender,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type Connected struct {
	Type     string        `json:"type"`
	SocketID domain.ConnID `json:"socketId"`
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

// UserInfo is the public view of a participant.
type UserInfo struct {
	UserID     domain.UserID `json:"userId"`
	Username   string        `json:"username"`
	SocketID   domain.ConnID `json:"socketId"`
	IsMuted    bool          `json:"isMuted"`
	IsSpeaking bool          `json:"isSpeaking"`
}

func InfoOf(p domain.Participant) UserInfo {
	return UserInfo{
		UserID:     p.UserID,
		Username:   p.Username,
		SocketID:   p.ConnID,
		IsMuted:    p.IsMuted,
		IsSpeaking: p.IsSpeaking,
	}
}

type UserJoined struct {
	Type string `json:"type"`
	UserInfo
}

type UserLeft struct {
	Type     string        `json:"type"`
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
	SocketID domain.ConnID `json:"socketId"`
}

type RoomUsers struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	Users  []UserInfo    `json:"users"`
}

type RoomStatus struct {
	Type             string        `json:"type"`
	RoomID           domain.RoomID `json:"roomId"`
	ParticipantCount int           `json:"participantCount"`
	Timestamp        time.Time     `json:"timestamp"`
}

type UserSpeaking struct {
	Type       string        `json:"type"`
	UserID     domain.UserID `json:"userId"`
	Username   string        `json:"username"`
	SocketID   domain.ConnID `json:"socketId"`
	IsSpeaking bool          `json:"isSpeaking"`
}

type UserMuted struct {
	Type     string        `json:"type"`
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
	SocketID domain.ConnID `json:"socketId"`
	IsMuted  bool          `json:"isMuted"`
}

type NewMessage struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

// Error answers a client frame the server refused. Event names the
// refused frame's type; it is empty when the frame could not be parsed.
type Error struct {
	Type    string `json:"type"`
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ErrorOf(event string, err error) Error {
	return Error{Type: TypeError, Event: event, Code: domain.Code(err), Message: err.Error()}
}

type Pong struct {
	Type string `json:"type"`
}
