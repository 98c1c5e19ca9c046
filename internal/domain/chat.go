package domain

import (
	"context"
	"time"
)

// MessageType distinguishes user-authored messages from assistant replies.
type MessageType string

// Message types stored in chat history.
const (
	MessageHuman MessageType = "human"
	MessageAI    MessageType = "ai"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == MessageHuman || t == MessageAI
}

// ChatMessage is a single stored chat exchange line. Messages are immutable
// once appended and are grouped by SessionID to reconstruct conversations.
type ChatMessage struct {
	ID        string
	SessionID string
	UserEmail string
	Type      MessageType
	Content   string
	CreatedAt time.Time
}

// ChatRepository defines the port for chat history persistence.
type ChatRepository interface {
	Append(ctx context.Context, m ChatMessage) error
	// ListByUser returns the user's messages in insertion order.
	ListByUser(ctx context.Context, email string) ([]ChatMessage, error)
}
