package store

import (
	"fmt"
	"time"
)

type MembershipStatus string

const (
	MembershipFree    MembershipStatus = "free"
	MembershipPremium MembershipStatus = "premium"
)

// Sender enumerates who authored a message. Unknown values are rejected at
// the boundary rather than stored and interpreted downstream.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAI     Sender = "ai"
	SenderSystem Sender = "system"
)

func ParseSender(s string) (Sender, error) {
	switch Sender(s) {
	case SenderUser, SenderAI, SenderSystem:
		return Sender(s), nil
	}
	return "", fmt.Errorf("unknown sender %q", s)
}

type User struct {
	ID                int64            `json:"id"`
	ExternalUserID    string           `json:"external_user_id"`
	PasswordHash      string           `json:"-"` // Do not expose this in JSON responses
	MembershipStatus  MembershipStatus `json:"membership_status"`
	ConversationCount int              `json:"conversation_count"`
	MessageCount      int              `json:"message_count"`
	CreatedAt         time.Time        `json:"created_at"`
}

type Conversation struct {
	ID                        string    `json:"id"` // Using UUID for external ID
	UserID                    int64     `json:"user_id"`
	Title                     *string   `json:"title"` // Nullable
	Summary                   *string   `json:"summary"`
	ConversationCountSnapshot int       `json:"conversation_count_snapshot"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

type Message struct {
	ID               string    `json:"id"` // Using UUID for external ID
	ConversationID   string    `json:"conversation_id"`
	Sender           Sender    `json:"sender"`
	Content          string    `json:"content"`
	ContentType      string    `json:"content_type"`
	Context          string    `json:"context,omitempty"` // Retrieval context used for AI messages
	Metadata         string    `json:"metadata,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	NegativeFeedback bool      `json:"negative_feedback"`
}

type Chunk struct {
	ID             string    `json:"id"` // UUID
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	Embedding      []float32 `json:"-"` // Don't marshal to JSON response, internal
	Source         string    `json:"source"`
	Metadata       string    `json:"metadata,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
