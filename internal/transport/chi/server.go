// Package chi is the HTTP transport: routing, request decoding and the
// domain-error to status-code mapping.
package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/logger"
	"github.com/ragline/ragline/internal/storage"
	analysisuc "github.com/ragline/ragline/internal/usecase/analysis"
	documentuc "github.com/ragline/ragline/internal/usecase/document"
	healthuc "github.com/ragline/ragline/internal/usecase/health"
	processuc "github.com/ragline/ragline/internal/usecase/process"
	queryuc "github.com/ragline/ragline/internal/usecase/query"
	usageuc "github.com/ragline/ragline/internal/usecase/usage"
)

// maxUploadBytes caps multipart uploads.
const maxUploadBytes = 32 << 20

type errorCode string

const (
	codeBadRequest           errorCode = "bad_request"
	codeUnauthorized         errorCode = "unauthorized"
	codeDocumentNotFound     errorCode = "document_not_found"
	codeConversationNotFound errorCode = "conversation_not_found"
	codeAlreadyProcessing    errorCode = "already_processing"
	codeRetryLimit           errorCode = "retry_limit_exceeded"
	codeUnsupportedFileType  errorCode = "unsupported_file_type"
	codeExtractionFailed     errorCode = "extraction_failed"
	codeEmbeddingError       errorCode = "embedding_provider_error"
	codeIndexError           errorCode = "vector_index_error"
	codeProvidersFailed      errorCode = "all_providers_failed"
	codeQueueFull            errorCode = "queue_full"
	codeInternalError        errorCode = "internal_error"
)

type errorResponse struct {
	Code     errorCode                `json:"code"`
	Message  string                   `json:"message"`
	Failures []domain.ProviderFailure `json:"failures,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the pipeline over HTTP.
type Server struct {
	documents     *documentuc.Service
	process       *processuc.Service
	queue         *processuc.Queue
	query         *queryuc.Service
	analysis      *analysisuc.Service
	usage         *usageuc.Service
	health        *healthuc.Service
	blobs         *storage.FSStore
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server.
func NewServer(
	documents *documentuc.Service,
	process *processuc.Service,
	queue *processuc.Queue,
	query *queryuc.Service,
	analysis *analysisuc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	blobs *storage.FSStore,
) *Server {
	s := &Server{
		documents: documents,
		process:   process,
		queue:     queue,
		query:     query,
		analysis:  analysis,
		usage:     usage,
		health:    health,
		blobs:     blobs,
	}
	s.errorHandlers = []errorHandler{
		providersFailedHandler,
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, codeDocumentNotFound),
		sentinelHandler(domain.ErrConversationNotFound, http.StatusNotFound, codeConversationNotFound),
		sentinelHandler(domain.ErrAlreadyProcessing, http.StatusConflict, codeAlreadyProcessing),
		sentinelHandler(domain.ErrRetryLimit, http.StatusConflict, codeRetryLimit),
		sentinelHandler(domain.ErrUnsupportedFileType, http.StatusBadRequest, codeUnsupportedFileType),
		sentinelHandler(analysisuc.ErrUnknownKind, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrExtraction, http.StatusUnprocessableEntity, codeExtractionFailed),
		sentinelHandler(domain.ErrEmbedding, http.StatusBadGateway, codeEmbeddingError),
		sentinelHandler(domain.ErrVectorIndex, http.StatusBadGateway, codeIndexError),
		sentinelHandler(processuc.ErrQueueFull, http.StatusServiceUnavailable, codeQueueFull),
	}
	return s
}

// Routes mounts the API onto a chi router. Blob downloads and health skip
// the user auth middleware; blobs are verified by signature instead.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/v1/blobs/*", s.DownloadBlob)

	r.Group(func(r chi.Router) {
		r.Use(UserAuthMiddleware())
		r.Post("/v1/documents", s.UploadDocument)
		r.Get("/v1/documents", s.ListDocuments)
		r.Get("/v1/documents/{id}", s.GetDocument)
		r.Get("/v1/documents/{id}/download", s.DocumentDownloadURL)
		r.Post("/v1/documents/{id}/process", s.ProcessDocument)
		r.Post("/v1/documents/{id}/retry", s.RetryDocument)
		r.Get("/v1/documents/{id}/analysis", s.AnalyzeDocument)
		r.Post("/v1/query", s.Query)
		r.Get("/v1/conversations/{id}/messages", s.ListMessages)
		r.Get("/v1/usage", s.Usage)
	})
}

type documentResponse struct {
	ID           string                  `json:"id"`
	FileName     string                  `json:"file_name"`
	FileType     domain.FileType         `json:"file_type"`
	SizeBytes    int64                   `json:"size_bytes"`
	Status       domain.Status           `json:"status"`
	ErrorMessage string                  `json:"error_message,omitempty"`
	Metadata     domain.DocumentMetadata `json:"metadata"`
	CreatedAt    string                  `json:"created_at"`
	UpdatedAt    string                  `json:"updated_at"`
}

func documentToResponse(d *domain.Document) documentResponse {
	return documentResponse{
		ID:           d.ID,
		FileName:     d.FileName,
		FileType:     d.FileType,
		SizeBytes:    d.SizeBytes,
		Status:       d.Status,
		ErrorMessage: d.ErrorMessage,
		Metadata:     d.Metadata,
		CreatedAt:    d.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:    d.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// UploadDocument handles POST /v1/documents (multipart, field "file").
func (s *Server) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid multipart body: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "read upload: "+err.Error())
		return
	}

	doc, err := s.documents.Upload(r.Context(), userID(r.Context()), header.Filename, data)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, documentToResponse(doc))
}

// ListDocuments handles GET /v1/documents with an optional status filter.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	var status domain.Status
	if v := r.URL.Query().Get("status"); v != "" {
		switch domain.Status(v) {
		case domain.StatusUploaded, domain.StatusProcessing, domain.StatusCompleted, domain.StatusError:
			status = domain.Status(v)
		default:
			writeError(w, http.StatusBadRequest, codeBadRequest, "unknown status "+strconv.Quote(v))
			return
		}
	}

	docs, err := s.documents.List(r.Context(), userID(r.Context()), status)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	items := make([]documentResponse, len(docs))
	for i, d := range docs {
		items[i] = documentToResponse(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetDocument handles GET /v1/documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.Get(r.Context(), userID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentToResponse(doc))
}

// DocumentDownloadURL handles GET /v1/documents/{id}/download.
func (s *Server) DocumentDownloadURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.documents.DownloadURL(r.Context(), userID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// ProcessDocument handles POST /v1/documents/{id}/process. Processing runs
// in the background; the call returns once the document is queued.
func (s *Server) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.documents.Get(r.Context(), userID(r.Context()), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if doc.Status == domain.StatusProcessing {
		writeError(w, http.StatusConflict, codeAlreadyProcessing, domain.ErrAlreadyProcessing.Error())
		return
	}
	if err := s.queue.Enqueue(id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(domain.StatusProcessing)})
}

// RetryDocument handles POST /v1/documents/{id}/retry.
func (s *Server) RetryDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.documents.Get(r.Context(), userID(r.Context()), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if err := s.process.Retry(r.Context(), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if err := s.queue.Enqueue(id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(domain.StatusProcessing)})
}

type queryRequest struct {
	Question       string   `json:"question"`
	DocumentIDs    []string `json:"document_ids,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Strategy       string   `json:"strategy,omitempty"`
	Provider       string   `json:"provider,omitempty"`
}

// Query handles POST /v1/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "question is required")
		return
	}

	resp, err := s.query.Answer(r.Context(), queryuc.Request{
		UserID:            userID(r.Context()),
		Question:          req.Question,
		DocumentIDs:       req.DocumentIDs,
		ConversationID:    req.ConversationID,
		Strategy:          domain.ParseStrategy(req.Strategy),
		PreferredProvider: req.Provider,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListMessages handles GET /v1/conversations/{id}/messages.
func (s *Server) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.query.Messages(r.Context(), userID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	type messageResponse struct {
		ID        string            `json:"id"`
		Role      domain.Role       `json:"role"`
		Content   string            `json:"content"`
		Model     string            `json:"model,omitempty"`
		Sources   []domain.Citation `json:"sources,omitempty"`
		CreatedAt string            `json:"created_at"`
	}
	items := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		items[i] = messageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Model:     m.Model,
			Sources:   m.Sources,
			CreatedAt: m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// AnalyzeDocument handles GET /v1/documents/{id}/analysis?kind=.
func (s *Server) AnalyzeDocument(w http.ResponseWriter, r *http.Request) {
	kind, err := analysisuc.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	result, err := s.analysis.Analyze(r.Context(), userID(r.Context()), chi.URLParam(r, "id"), kind)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Usage handles GET /v1/usage.
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	summary, err := s.usage.Summary(r.Context(), userID(r.Context()))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// DownloadBlob handles GET /v1/blobs/{key} with a presigned signature.
func (s *Server) DownloadBlob(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid object key")
		return
	}
	q := r.URL.Query()
	exp, err := strconv.ParseInt(q.Get("exp"), 10, 64)
	if err != nil || !s.blobs.Verify(key, exp, q.Get("sig")) {
		writeError(w, http.StatusForbidden, codeUnauthorized, "invalid or expired signature")
		return
	}

	data, err := s.blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, codeDocumentNotFound, "object not found")
			return
		}
		s.handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", s.blobs.ContentType(key))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// providersFailedHandler maps the all-providers-failed case, preserving the
// per-provider failure reasons in the payload.
func providersFailedHandler(w http.ResponseWriter, err error, _ string) bool {
	var qerr *domain.QueryError
	if !errors.As(err, &qerr) {
		return false
	}
	writeJSON(w, http.StatusBadGateway, errorResponse{
		Code:     codeProvidersFailed,
		Message:  "all providers failed",
		Failures: qerr.Failures,
	})
	return true
}

func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// safeDomainMessage keeps internal error detail out of responses while
// passing through the known sentinel texts.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDocumentNotFound,
		domain.ErrConversationNotFound,
		domain.ErrAlreadyProcessing,
		domain.ErrRetryLimit,
		domain.ErrUnsupportedFileType,
		domain.ErrExtraction,
		domain.ErrEmbedding,
		domain.ErrVectorIndex,
		analysisuc.ErrUnknownKind,
		processuc.ErrQueueFull,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}
