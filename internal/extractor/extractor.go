// Package extractor converts raw document bytes into plain text plus
// structural metadata. Extraction failures are terminal for a document:
// there are no retries at this layer.
package extractor

import (
	"context"

	"github.com/ragline/ragline/internal/domain"
)

// Result holds extracted text and format-specific structure.
type Result struct {
	Text     string
	HTML     string // DOCX only: display rendering
	Sheets   []domain.SheetTable
	Metadata domain.DocumentMetadata
}

// Extractor converts one file format into a Result.
type Extractor interface {
	FileType() domain.FileType
	Extract(ctx context.Context, data []byte) (*Result, error)
}

// Registry dispatches extraction by declared file type.
type Registry struct {
	byType map[domain.FileType]Extractor
}

// NewRegistry creates a registry over the given extractors.
func NewRegistry(extractors ...Extractor) *Registry {
	byType := make(map[domain.FileType]Extractor, len(extractors))
	for _, e := range extractors {
		byType[e.FileType()] = e
	}
	return &Registry{byType: byType}
}

// Extract runs the extractor registered for the declared file type.
func (r *Registry) Extract(ctx context.Context, ft domain.FileType, data []byte) (*Result, error) {
	e, ok := r.byType[ft]
	if !ok {
		return nil, domain.ErrUnsupportedFileType
	}
	return e.Extract(ctx, data)
}
