package query

import (
	"context"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/repository/cache"
)

// Retriever searches the vector index.
type Retriever interface {
	Query(ctx context.Context, vector []float32, userID string, documentIDs []string, topK int, minScore float64) ([]domain.ScoredChunk, error)
}

// Router completes a prompt against the configured providers.
type Router interface {
	Complete(ctx context.Context, strategy domain.Strategy, preferred, system, prompt string) (domain.Completion, string, error)
}

// ConversationRepo persists conversations and messages.
type ConversationRepo interface {
	Create(ctx context.Context, c *domain.Conversation) error
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, m *domain.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error)
}

// ResultCache stores assembled answers.
type ResultCache interface {
	Get(ctx context.Context, cat cache.Category, key string) ([]byte, bool)
	Set(ctx context.Context, cat cache.Category, key string, value []byte) error
}

// UsageRecorder appends ledger entries.
type UsageRecorder interface {
	Record(ctx context.Context, userID string, action domain.Action, metadata map[string]string)
}
