package document

import (
	"context"
	"time"

	"github.com/ragline/ragline/internal/domain"
)

// Repository defines the persistence contract for documents.
type Repository interface {
	Create(ctx context.Context, doc *domain.Document) error
	Get(ctx context.Context, id string) (*domain.Document, error)
	ListByUser(ctx context.Context, userID string, status domain.Status) ([]*domain.Document, error)
}

// BlobStore holds raw uploads.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PresignedURL(key string, ttl time.Duration) (string, error)
}

// Enqueuer schedules background processing.
type Enqueuer interface {
	Enqueue(documentID string) error
}

// UsageRecorder appends ledger entries.
type UsageRecorder interface {
	Record(ctx context.Context, userID string, action domain.Action, metadata map[string]string)
}
