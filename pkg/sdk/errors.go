package ragline

import (
	"fmt"
	"net/http"
)

// Error codes returned by the API.
const (
	CodeBadRequest           = "bad_request"
	CodeUnauthorized         = "unauthorized"
	CodeDocumentNotFound     = "document_not_found"
	CodeConversationNotFound = "conversation_not_found"
	CodeAlreadyProcessing    = "already_processing"
	CodeRetryLimit           = "retry_limit_exceeded"
	CodeUnsupportedFileType  = "unsupported_file_type"
	CodeExtractionFailed     = "extraction_failed"
	CodeEmbeddingError       = "embedding_provider_error"
	CodeIndexError           = "vector_index_error"
	CodeProvidersFailed      = "all_providers_failed"
	CodeQueueFull            = "queue_full"
	CodeInternalError        = "internal_error"
)

// ProviderFailure is one provider's failure reason within an
// all-providers-failed error.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status   int
	Code     string
	Message  string
	Failures []ProviderFailure
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ragline: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 API error.
func IsNotFound(err error) bool {
	return statusIs(err, http.StatusNotFound)
}

// IsConflict reports whether err is a 409 API error (already processing or
// retry limit exceeded).
func IsConflict(err error) bool {
	return statusIs(err, http.StatusConflict)
}

func statusIs(err error, status int) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == status
}
