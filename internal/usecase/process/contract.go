package process

import (
	"context"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/extractor"
)

// DocumentRepo defines the persistence contract for documents.
type DocumentRepo interface {
	Get(ctx context.Context, id string) (*domain.Document, error)
	SetStatus(ctx context.Context, id string, status domain.Status, errorMessage string) error
	SetExtraction(ctx context.Context, id, text string, meta domain.DocumentMetadata) error
	SetMetadata(ctx context.Context, id string, meta domain.DocumentMetadata) error
}

// BlobStore reads raw uploads.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Extractors dispatches extraction by file type.
type Extractors interface {
	Extract(ctx context.Context, ft domain.FileType, data []byte) (*extractor.Result, error)
}

// Chunker splits document text into chunks.
type Chunker interface {
	Split(documentID, text string) []domain.Chunk
}

// VectorIndex writes and clears indexed chunks.
type VectorIndex interface {
	UpsertChunks(ctx context.Context, userID string, chunks []domain.Chunk, vectors [][]float32) error
	DeleteDocument(ctx context.Context, documentID string) error
}

// Locker provides per-document advisory locks.
type Locker interface {
	Acquire(ctx context.Context, id string) (release func(), ok bool, err error)
}

// UsageRecorder appends ledger entries.
type UsageRecorder interface {
	Record(ctx context.Context, userID string, action domain.Action, metadata map[string]string)
}
