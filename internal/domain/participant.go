package domain

import "time"

// Participant is the registry entry of one connection inside a room.
type Participant struct {
	ConnID           ConnID     `json:"socketId"`
	UserID           UserID     `json:"userId"`
	Username         string     `json:"username"`
	RoomID           RoomID     `json:"roomId"`
	IsSpeaking       bool       `json:"isSpeaking"`
	IsMuted          bool       `json:"isMuted"`
	JoinedAt         time.Time  `json:"joinedAt"`
	LastSpeakingTime *time.Time `json:"lastSpeakingTime,omitempty"`
	LastMuteChange   *time.Time `json:"lastMuteChange,omitempty"`
}

// NewParticipant avoids raw literals in the registry and keeps construction obvious.
func NewParticipant(cid ConnID, room RoomID, user User, now time.Time) *Participant {
	return &Participant{
		ConnID:   cid,
		UserID:   user.ID,
		Username: user.Username,
		RoomID:   room,
		JoinedAt: now,
	}
}

// Clone returns a copy that shares no pointers with p.
func (p *Participant) Clone() Participant {
	out := *p
	if p.LastSpeakingTime != nil {
		t := *p.LastSpeakingTime
		out.LastSpeakingTime = &t
	}
	if p.LastMuteChange != nil {
		t := *p.LastMuteChange
		out.LastMuteChange = &t
	}
	return out
}
