package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrConversationNotFound signals a missing conversation.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrExtraction signals an unsupported or corrupt file.
	ErrExtraction = errors.New("extraction failed")
	// ErrEmbedding signals an embedding provider failure.
	ErrEmbedding = errors.New("embedding provider error")
	// ErrVectorIndex signals a vector index upsert or query failure.
	ErrVectorIndex = errors.New("vector index error")
	// ErrRetryLimit signals an exhausted document retry budget.
	ErrRetryLimit = errors.New("retry limit exceeded")
	// ErrAlreadyProcessing signals a concurrent processing attempt on one document.
	ErrAlreadyProcessing = errors.New("document is already processing")
	// ErrUnsupportedFileType signals a file type with no extractor.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrCacheUnavailable signals that no cache backend is configured.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// ExtractionError wraps ErrExtraction with the file type and the parser's message.
type ExtractionError struct {
	FileType FileType
	Cause    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrExtraction.Error(), e.FileType, e.Cause.Error())
}

func (e *ExtractionError) Unwrap() error { return ErrExtraction }

// NewExtractionError creates an extraction error for the given file type.
func NewExtractionError(ft FileType, cause error) error {
	return &ExtractionError{FileType: ft, Cause: cause}
}

// ProviderFailure records why a single LLM provider failed during fallback.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// QueryError signals that every configured LLM provider failed.
// It carries one failure reason per attempted provider.
type QueryError struct {
	Failures []ProviderFailure
}

func (e *QueryError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Provider + ": " + f.Reason
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// RetryLimitError wraps ErrRetryLimit with the configured maximum.
type RetryLimitError struct {
	DocumentID string
	Max        int
}

func (e *RetryLimitError) Error() string {
	return fmt.Sprintf("%s: document %s exceeded %d retries", ErrRetryLimit.Error(), e.DocumentID, e.Max)
}

func (e *RetryLimitError) Unwrap() error { return ErrRetryLimit }
