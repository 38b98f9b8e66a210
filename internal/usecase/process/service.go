package process

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/metrics"
)

// Config holds processing limits.
type Config struct {
	MaxRetries int
}

// Service runs the extract, chunk, embed, index pipeline for one document.
type Service struct {
	documents  DocumentRepo
	blobs      BlobStore
	extractors Extractors
	chunker    Chunker
	embedder   domain.Embedder
	index      VectorIndex
	locks      Locker
	usage      UsageRecorder
	maxRetries int
	logger     *zap.Logger
}

func NewService(
	documents DocumentRepo,
	blobs BlobStore,
	extractors Extractors,
	chunker Chunker,
	embedder domain.Embedder,
	index VectorIndex,
	locks Locker,
	usage UsageRecorder,
	cfg Config,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{
		documents:  documents,
		blobs:      blobs,
		extractors: extractors,
		chunker:    chunker,
		embedder:   embedder,
		index:      index,
		locks:      locks,
		usage:      usage,
		maxRetries: maxRetries,
		logger:     log.Named("process"),
	}
}

// Process runs the full pipeline for a document. A document already being
// processed by another worker returns domain.ErrAlreadyProcessing.
func (s *Service) Process(ctx context.Context, documentID string) error {
	release, ok, err := s.locks.Acquire(ctx, documentID)
	if err != nil {
		return fmt.Errorf("acquire processing lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrAlreadyProcessing)
	}
	defer release()

	return s.run(ctx, documentID)
}

// Retry records a retry attempt for a failed document. It enforces the
// attempt limit and bumps the counter; the caller re-queues the pipeline
// afterwards. Once the limit is reached the pipeline is never re-invoked.
func (s *Service) Retry(ctx context.Context, documentID string) error {
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Metadata.RetryCount >= s.maxRetries {
		return &domain.RetryLimitError{DocumentID: documentID, Max: s.maxRetries}
	}

	meta := doc.Metadata
	meta.RetryCount++
	if err := s.documents.SetMetadata(ctx, documentID, meta); err != nil {
		return fmt.Errorf("record retry attempt: %w", err)
	}
	return nil
}

func (s *Service) run(ctx context.Context, documentID string) error {
	log := s.logger.With(zap.String("document_id", documentID))
	start := time.Now()

	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.documents.SetStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	data, err := s.blobs.Get(ctx, doc.StorageKey)
	if err != nil {
		s.fail(ctx, documentID, fmt.Sprintf("read upload: %v", err))
		return fmt.Errorf("read upload %s: %w", doc.StorageKey, err)
	}

	result, err := s.extractors.Extract(ctx, doc.FileType, data)
	if err != nil {
		metrics.ExtractionTotal.WithLabelValues(string(doc.FileType), "error").Inc()
		s.fail(ctx, documentID, fmt.Sprintf("extraction: %v", err))
		return err
	}
	metrics.ExtractionTotal.WithLabelValues(string(doc.FileType), "ok").Inc()

	meta := result.Metadata
	meta.RetryCount = doc.Metadata.RetryCount
	if err := s.documents.SetExtraction(ctx, documentID, result.Text, meta); err != nil {
		s.fail(ctx, documentID, fmt.Sprintf("store extraction: %v", err))
		return fmt.Errorf("store extraction: %w", err)
	}

	// The document is readable from here on. Indexing continues in the
	// same run; an indexing failure flips the status back to error.
	if err := s.documents.SetStatus(ctx, documentID, domain.StatusCompleted, ""); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	s.usage.Record(ctx, doc.UserID, domain.ActionProcess, map[string]string{"document_id": documentID})

	if err := s.indexChunks(ctx, doc.UserID, documentID, result.Text, meta); err != nil {
		s.fail(ctx, documentID, fmt.Sprintf("indexing: %v", err))
		return err
	}

	metrics.ProcessingDuration.WithLabelValues(string(doc.FileType), "ok").Observe(time.Since(start).Seconds())
	log.Info("document processed",
		zap.String("file_type", string(doc.FileType)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Service) indexChunks(ctx context.Context, userID, documentID, text string, meta domain.DocumentMetadata) error {
	// Drop any chunks left from a previous attempt so a redrive never
	// leaves stale vectors behind.
	if err := s.index.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	chunks := s.chunker.Split(documentID, text)
	if len(chunks) == 0 {
		meta.ChunkCount = 0
		now := time.Now().UTC()
		meta.IndexedAt = &now
		return s.documents.SetMetadata(ctx, documentID, meta)
	}

	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		res, err := s.embedder.Embed(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", c.Index, err)
		}
		vectors[i] = res.Embedding
	}

	if err := s.index.UpsertChunks(ctx, userID, chunks, vectors); err != nil {
		return err
	}
	metrics.ChunksIndexedTotal.Add(float64(len(chunks)))

	meta.ChunkCount = len(chunks)
	now := time.Now().UTC()
	meta.IndexedAt = &now
	return s.documents.SetMetadata(ctx, documentID, meta)
}

func (s *Service) fail(ctx context.Context, documentID, message string) {
	// Status writes on the failure path must survive caller cancellation.
	ctx = context.WithoutCancel(ctx)
	if err := s.documents.SetStatus(ctx, documentID, domain.StatusError, message); err != nil {
		s.logger.Error("mark document failed",
			zap.String("document_id", documentID),
			zap.Error(err))
	}
}
