package domain

import (
	"fmt"
	"strings"
)

const MaxRoomIDLen = 64

type (
	RoomID string
	// ConnID identifies one live signaling connection (the socket id on the wire).
	ConnID string
)

// ParseRoomID trims and bounds a client supplied room id.
func ParseRoomID(raw string) (RoomID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("room id empty: %w", ErrMalformed)
	}
	if len(s) > MaxRoomIDLen {
		return "", fmt.Errorf("room id too long: %w", ErrMalformed)
	}
	return RoomID(s), nil
}

// RoomStatus is the derived view of a room at one instant.
type RoomStatus struct {
	RoomID           RoomID `json:"roomId"`
	ParticipantCount int    `json:"participantCount"`
}
