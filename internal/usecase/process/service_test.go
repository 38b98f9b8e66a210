package process

import (
	"context"
	"errors"
	"testing"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/extractor"
)

// --- Mocks ---

type mockDocRepo struct {
	doc        *domain.Document
	statuses   []domain.Status
	lastError  string
	extracted  string
	meta       *domain.DocumentMetadata
	getErr     error
	setMetaErr error
}

func (m *mockDocRepo) Get(_ context.Context, _ string) (*domain.Document, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	d := *m.doc
	return &d, nil
}

func (m *mockDocRepo) SetStatus(_ context.Context, _ string, status domain.Status, errorMessage string) error {
	m.statuses = append(m.statuses, status)
	m.lastError = errorMessage
	m.doc.Status = status
	return nil
}

func (m *mockDocRepo) SetExtraction(_ context.Context, _ string, text string, meta domain.DocumentMetadata) error {
	m.extracted = text
	m.meta = &meta
	m.doc.Text = text
	m.doc.Metadata = meta
	return nil
}

func (m *mockDocRepo) SetMetadata(_ context.Context, _ string, meta domain.DocumentMetadata) error {
	if m.setMetaErr != nil {
		return m.setMetaErr
	}
	m.meta = &meta
	m.doc.Metadata = meta
	return nil
}

type mockBlobs struct {
	data []byte
	err  error
}

func (m *mockBlobs) Get(_ context.Context, _ string) ([]byte, error) { return m.data, m.err }

type mockExtractors struct {
	result *extractor.Result
	err    error
}

func (m *mockExtractors) Extract(_ context.Context, _ domain.FileType, _ []byte) (*extractor.Result, error) {
	return m.result, m.err
}

type mockChunker struct {
	chunks []domain.Chunk
}

func (m *mockChunker) Split(_, _ string) []domain.Chunk { return m.chunks }

type mockEmbedder struct {
	calls int
	err   error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 2}}, nil
}

type mockIndex struct {
	deleted   []string
	upserts   int
	upsertErr error
}

func (m *mockIndex) UpsertChunks(_ context.Context, _ string, chunks []domain.Chunk, vectors [][]float32) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if len(chunks) != len(vectors) {
		return errors.New("length mismatch")
	}
	m.upserts += len(chunks)
	return nil
}

func (m *mockIndex) DeleteDocument(_ context.Context, documentID string) error {
	m.deleted = append(m.deleted, documentID)
	return nil
}

type mockLocker struct {
	held     bool
	released int
	err      error
}

func (m *mockLocker) Acquire(_ context.Context, _ string) (func(), bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	if m.held {
		return nil, false, nil
	}
	m.held = true
	return func() { m.held = false; m.released++ }, true, nil
}

type mockUsage struct {
	actions []domain.Action
}

func (m *mockUsage) Record(_ context.Context, _ string, action domain.Action, _ map[string]string) {
	m.actions = append(m.actions, action)
}

type fixture struct {
	docs    *mockDocRepo
	blobs   *mockBlobs
	extract *mockExtractors
	chunks  *mockChunker
	emb     *mockEmbedder
	index   *mockIndex
	locks   *mockLocker
	usage   *mockUsage
	svc     *Service
}

func newFixture() *fixture {
	f := &fixture{
		docs: &mockDocRepo{doc: &domain.Document{
			ID:         "doc-1",
			UserID:     "u1",
			FileType:   domain.FilePDF,
			StorageKey: "u1/doc-1/file.pdf",
			Status:     domain.StatusUploaded,
		}},
		blobs:   &mockBlobs{data: []byte("raw pdf bytes")},
		extract: &mockExtractors{result: &extractor.Result{Text: "extracted text", Metadata: domain.DocumentMetadata{PageCount: 2}}},
		chunks: &mockChunker{chunks: []domain.Chunk{
			{DocumentID: "doc-1", Index: 0, Text: "extracted"},
			{DocumentID: "doc-1", Index: 1, Text: "text"},
		}},
		emb:   &mockEmbedder{},
		index: &mockIndex{},
		locks: &mockLocker{},
		usage: &mockUsage{},
	}
	f.svc = NewService(f.docs, f.blobs, f.extract, f.chunks, f.emb, f.index, f.locks, f.usage,
		Config{MaxRetries: 3}, nil)
	return f
}

// --- Tests ---

func TestProcess_HappyPath(t *testing.T) {
	f := newFixture()

	if err := f.svc.Process(context.Background(), "doc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantStatuses := []domain.Status{domain.StatusProcessing, domain.StatusCompleted}
	if len(f.docs.statuses) != len(wantStatuses) {
		t.Fatalf("statuses = %v", f.docs.statuses)
	}
	for i, s := range wantStatuses {
		if f.docs.statuses[i] != s {
			t.Errorf("status[%d] = %s, want %s", i, f.docs.statuses[i], s)
		}
	}

	if f.docs.extracted != "extracted text" {
		t.Errorf("extracted = %q", f.docs.extracted)
	}
	if f.emb.calls != 2 {
		t.Errorf("embed calls = %d, want 2", f.emb.calls)
	}
	if f.index.upserts != 2 {
		t.Errorf("indexed chunks = %d, want 2", f.index.upserts)
	}
	if len(f.index.deleted) != 1 {
		t.Errorf("stale chunks not cleared before indexing: %v", f.index.deleted)
	}
	if f.docs.meta == nil || f.docs.meta.ChunkCount != 2 || f.docs.meta.IndexedAt == nil {
		t.Errorf("final metadata = %+v", f.docs.meta)
	}
	if f.docs.meta.PageCount != 2 {
		t.Errorf("extractor metadata lost: %+v", f.docs.meta)
	}
	if len(f.usage.actions) != 1 || f.usage.actions[0] != domain.ActionProcess {
		t.Errorf("usage actions = %v", f.usage.actions)
	}
	if f.locks.released != 1 {
		t.Error("lock not released")
	}
}

func TestProcess_AlreadyLocked(t *testing.T) {
	f := newFixture()
	f.locks.held = true

	err := f.svc.Process(context.Background(), "doc-1")
	if !errors.Is(err, domain.ErrAlreadyProcessing) {
		t.Fatalf("expected ErrAlreadyProcessing, got %v", err)
	}
	if len(f.docs.statuses) != 0 {
		t.Errorf("no status change expected, got %v", f.docs.statuses)
	}
}

func TestProcess_ExtractionFailure(t *testing.T) {
	f := newFixture()
	f.extract.result = nil
	f.extract.err = domain.NewExtractionError(domain.FilePDF, errors.New("corrupt"))

	err := f.svc.Process(context.Background(), "doc-1")
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}

	last := f.docs.statuses[len(f.docs.statuses)-1]
	if last != domain.StatusError {
		t.Errorf("final status = %s, want error", last)
	}
	if f.docs.lastError == "" {
		t.Error("error message not recorded")
	}
	if f.index.upserts != 0 {
		t.Error("nothing must be indexed after extraction failure")
	}
	if len(f.usage.actions) != 0 {
		t.Errorf("no usage charge on failure, got %v", f.usage.actions)
	}
}

func TestProcess_EmbeddingFailureFlipsToError(t *testing.T) {
	f := newFixture()
	f.emb.err = domain.ErrEmbedding

	err := f.svc.Process(context.Background(), "doc-1")
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}

	// Extraction succeeded, so the document passed through completed
	// before the indexing failure flipped it to error.
	wantStatuses := []domain.Status{domain.StatusProcessing, domain.StatusCompleted, domain.StatusError}
	if len(f.docs.statuses) != len(wantStatuses) {
		t.Fatalf("statuses = %v", f.docs.statuses)
	}
	if f.index.upserts != 0 {
		t.Error("no partial index expected")
	}
}

func TestProcess_NoChunks(t *testing.T) {
	f := newFixture()
	f.chunks.chunks = nil

	if err := f.svc.Process(context.Background(), "doc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.docs.meta == nil || f.docs.meta.ChunkCount != 0 || f.docs.meta.IndexedAt == nil {
		t.Errorf("metadata = %+v", f.docs.meta)
	}
	if f.emb.calls != 0 {
		t.Errorf("embed calls = %d, want 0", f.emb.calls)
	}
}

func TestRetry_BumpsCount(t *testing.T) {
	f := newFixture()
	f.docs.doc.Status = domain.StatusError
	f.docs.doc.Metadata.RetryCount = 1

	if err := f.svc.Retry(context.Background(), "doc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.docs.meta == nil || f.docs.meta.RetryCount != 2 {
		t.Errorf("retry count = %+v", f.docs.meta)
	}
}

func TestRetry_LimitExceeded(t *testing.T) {
	f := newFixture()
	f.docs.doc.Metadata.RetryCount = 3

	err := f.svc.Retry(context.Background(), "doc-1")
	if !errors.Is(err, domain.ErrRetryLimit) {
		t.Fatalf("expected ErrRetryLimit, got %v", err)
	}
	var rerr *domain.RetryLimitError
	if !errors.As(err, &rerr) {
		t.Fatal("expected *domain.RetryLimitError")
	}
	if rerr.Max != 3 {
		t.Errorf("max = %d", rerr.Max)
	}
	if f.docs.meta != nil {
		t.Error("metadata must not change once the limit is reached")
	}
}

func TestRetry_PreservesCountThroughRun(t *testing.T) {
	f := newFixture()
	f.docs.doc.Status = domain.StatusError
	f.docs.doc.Metadata.RetryCount = 1

	if err := f.svc.Retry(context.Background(), "doc-1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if err := f.svc.Process(context.Background(), "doc-1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	// The run rewrites metadata from extractor output; the attempt count
	// must survive it.
	if f.docs.meta.RetryCount != 2 {
		t.Errorf("retry count after run = %d, want 2", f.docs.meta.RetryCount)
	}
}
