package document

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain"
)

var contentTypes = map[domain.FileType]string{
	domain.FilePDF:  "application/pdf",
	domain.FileDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	domain.FileXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Service handles upload, lookup and listing of documents.
type Service struct {
	documents Repository
	blobs     BlobStore
	queue     Enqueuer
	usage     UsageRecorder
	logger    *zap.Logger
}

func NewService(documents Repository, blobs BlobStore, queue Enqueuer, usage UsageRecorder, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		documents: documents,
		blobs:     blobs,
		queue:     queue,
		usage:     usage,
		logger:    log.Named("document"),
	}
}

// Upload stores the raw file, records the document and queues it for
// processing. The returned document is in the uploaded state; processing
// happens in the background.
func (s *Service) Upload(ctx context.Context, userID, filename string, data []byte) (*domain.Document, error) {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	ft, err := domain.ParseFileType(ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFileType, filename)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", domain.ErrUnsupportedFileType)
	}

	id := uuid.NewString()
	key := path.Join(userID, id, path.Base(filename))
	if err := s.blobs.Put(ctx, key, data, contentTypes[ft]); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	doc := &domain.Document{
		ID:         id,
		UserID:     userID,
		FileName:   path.Base(filename),
		FileType:   ft,
		SizeBytes:  int64(len(data)),
		Status:     domain.StatusUploaded,
		StorageKey: key,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	s.usage.Record(ctx, userID, domain.ActionUpload, map[string]string{"document_id": id})

	if err := s.queue.Enqueue(id); err != nil {
		// The upload itself succeeded; processing can be redriven
		// through the process endpoint.
		s.logger.Warn("enqueue after upload failed",
			zap.String("document_id", id),
			zap.Error(err))
	}

	s.logger.Info("document uploaded",
		zap.String("document_id", id),
		zap.String("file_type", string(ft)),
		zap.Int64("size_bytes", doc.SizeBytes))
	return doc, nil
}

// Get returns a document owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Document, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

// List returns the user's documents, optionally filtered by status,
// newest first.
func (s *Service) List(ctx context.Context, userID string, status domain.Status) ([]*domain.Document, error) {
	return s.documents.ListByUser(ctx, userID, status)
}

// downloadTTL bounds how long a signed download link stays valid.
const downloadTTL = 15 * time.Minute

// DownloadURL returns a signed, expiring URL for the original upload.
func (s *Service) DownloadURL(ctx context.Context, userID, id string) (string, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}
	return s.blobs.PresignedURL(doc.StorageKey, downloadTTL)
}
