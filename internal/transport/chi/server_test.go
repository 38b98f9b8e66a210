package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	chirouter "github.com/go-chi/chi/v5"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/storage"
	analysisuc "github.com/ragline/ragline/internal/usecase/analysis"
	processuc "github.com/ragline/ragline/internal/usecase/process"
)

func errorOnlyServer() *Server {
	return NewServer(nil, nil, nil, nil, nil, nil, nil, nil)
}

// --- Tests ---

func TestHandleDomainError_Mapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   errorCode
	}{
		{"document not found", domain.ErrDocumentNotFound, http.StatusNotFound, codeDocumentNotFound},
		{"wrapped document not found", fmt.Errorf("get: %w", domain.ErrDocumentNotFound), http.StatusNotFound, codeDocumentNotFound},
		{"conversation not found", domain.ErrConversationNotFound, http.StatusNotFound, codeConversationNotFound},
		{"already processing", domain.ErrAlreadyProcessing, http.StatusConflict, codeAlreadyProcessing},
		{"retry limit", &domain.RetryLimitError{DocumentID: "d1", Max: 3}, http.StatusConflict, codeRetryLimit},
		{"unsupported file type", domain.ErrUnsupportedFileType, http.StatusBadRequest, codeUnsupportedFileType},
		{"unknown analysis kind", analysisuc.ErrUnknownKind, http.StatusBadRequest, codeBadRequest},
		{"extraction", domain.NewExtractionError(domain.FilePDF, errors.New("bad xref")), http.StatusUnprocessableEntity, codeExtractionFailed},
		{"embedding", domain.ErrEmbedding, http.StatusBadGateway, codeEmbeddingError},
		{"vector index", domain.ErrVectorIndex, http.StatusBadGateway, codeIndexError},
		{"queue full", processuc.ErrQueueFull, http.StatusServiceUnavailable, codeQueueFull},
		{"unknown error", errors.New("disk on fire"), http.StatusInternalServerError, codeInternalError},
	}

	s := errorOnlyServer()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			s.handleDomainError(rr, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)

			if rr.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			var resp errorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tc.wantCode)
			}
		})
	}
}

func TestHandleDomainError_HidesInternalDetail(t *testing.T) {
	s := errorOnlyServer()
	rr := httptest.NewRecorder()
	s.handleDomainError(rr, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("dial tcp 10.0.0.5:6379: connection refused"))

	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message != "internal error" {
		t.Errorf("internal detail leaked: %q", resp.Message)
	}
}

func TestHandleDomainError_ProviderFailures(t *testing.T) {
	s := errorOnlyServer()
	rr := httptest.NewRecorder()
	s.handleDomainError(rr, httptest.NewRequest(http.MethodGet, "/", nil), &domain.QueryError{Failures: []domain.ProviderFailure{
		{Provider: "openai", Reason: "timeout"},
		{Provider: "anthropic", Reason: "circuit open"},
	}})

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadGateway)
	}
	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != codeProvidersFailed {
		t.Errorf("code = %q, want %q", resp.Code, codeProvidersFailed)
	}
	if len(resp.Failures) != 2 || resp.Failures[1].Reason != "circuit open" {
		t.Errorf("failures = %+v", resp.Failures)
	}
}

func TestDownloadBlob(t *testing.T) {
	blobs, err := storage.NewFSStore(t.TempDir(), "http://localhost:8080", "test-secret")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if err := blobs.Put(context.Background(), "u1/doc-1/report.pdf", []byte("%PDF-1.4"), "application/pdf"); err != nil {
		t.Fatalf("put blob: %v", err)
	}

	s := NewServer(nil, nil, nil, nil, nil, nil, nil, blobs)
	r := chirouter.NewRouter()
	s.Routes(r)

	signed, err := blobs.PresignedURL("u1/doc-1/report.pdf", 10*time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}

	req := httptest.NewRequest("GET", u.RequestURI(), http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "%PDF-1.4" {
		t.Errorf("body = %q", got)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
}

func TestDownloadBlob_BadSignature(t *testing.T) {
	blobs, err := storage.NewFSStore(t.TempDir(), "http://localhost:8080", "test-secret")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	s := NewServer(nil, nil, nil, nil, nil, nil, nil, blobs)
	r := chirouter.NewRouter()
	s.Routes(r)

	exp := time.Now().Add(time.Minute).Unix()
	req := httptest.NewRequest("GET", fmt.Sprintf("/v1/blobs/u1/doc-1/report.pdf?exp=%d&sig=deadbeef", exp), http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestAuthenticatedRoutes_RequireUser(t *testing.T) {
	s := errorOnlyServer()
	r := chirouter.NewRouter()
	s.Routes(r)

	req := httptest.NewRequest("GET", "/v1/documents", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
