package domain

import (
	"fmt"
	"strings"
	"time"
)

const MaxMessageLen = 2000

type MessageType string

const (
	MessageText    MessageType = "text"
	MessageSticker MessageType = "sticker"
	MessageFile    MessageType = "file"
	MessageSystem  MessageType = "system"
)

// Message is one chat entry. ID is assigned by the server and sorts in arrival order.
type Message struct {
	ID        string      `json:"id"`
	RoomID    RoomID      `json:"roomId"`
	UserID    UserID      `json:"userId"`
	Username  string      `json:"username"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// ParseMessageType accepts the kinds a client may send. System messages are server only.
func ParseMessageType(raw string) (MessageType, error) {
	switch t := MessageType(raw); t {
	case "":
		return MessageText, nil
	case MessageText, MessageSticker, MessageFile:
		return t, nil
	default:
		return "", fmt.Errorf("message type %q: %w", raw, ErrMalformed)
	}
}

// NormalizeContent trims content and enforces the length bound.
func NormalizeContent(raw string, limit int) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty message: %w", ErrMalformed)
	}
	if limit > 0 && len(s) > limit {
		return "", fmt.Errorf("message longer than %d bytes: %w", limit, ErrMalformed)
	}
	return s, nil
}
