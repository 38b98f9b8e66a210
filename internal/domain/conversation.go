package domain

import "time"

// Role tags a message author.
type Role string

const (
	// RoleUser marks a message written by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a model-generated message.
	RoleAssistant Role = "assistant"
)

// Conversation groups messages for one user, optionally scoped to one document.
type Conversation struct {
	ID         string
	UserID     string
	DocumentID string // empty when not scoped to a document
	Title      string
	CreatedAt  time.Time
}

// Citation is a source reference attached to an assistant message.
type Citation struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Message belongs to exactly one conversation, ordered by creation time.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	Model          string // model that produced an assistant message
	Sources        []Citation
	CreatedAt      time.Time
}
