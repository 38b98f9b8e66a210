// Package analysis produces cached per-document LLM analyses.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/repository/cache"
)

// Kind selects the analysis to run.
type Kind string

const (
	KindSummary   Kind = "summary"
	KindEntities  Kind = "entities"
	KindSentiment Kind = "sentiment"
)

// ErrUnknownKind is returned for an unrecognized analysis kind.
var ErrUnknownKind = errors.New("unknown analysis kind")

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSummary, KindEntities, KindSentiment:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

var prompts = map[Kind]string{
	KindSummary:   "Summarize the following document in a few short paragraphs. Cover the main topics and conclusions.",
	KindEntities:  "List the named entities in the following document, grouped as people, organizations, places, dates and amounts. One entity per line.",
	KindSentiment: "Describe the overall sentiment and tone of the following document in one short paragraph, then label it as positive, negative, neutral or mixed.",
}

const systemPrompt = "You are a document analyst. Work only from the provided document text."

// The document text sent to the model is capped so oversized uploads do not
// blow the provider's context window.
const maxAnalysisBytes = 24 * 1024

// DocumentRepo reads documents for ownership and status checks.
type DocumentRepo interface {
	Get(ctx context.Context, id string) (*domain.Document, error)
}

// Router completes a prompt against the configured providers.
type Router interface {
	Complete(ctx context.Context, strategy domain.Strategy, preferred, system, prompt string) (domain.Completion, string, error)
}

// ResultCache stores computed analyses.
type ResultCache interface {
	Get(ctx context.Context, cat cache.Category, key string) ([]byte, bool)
	Set(ctx context.Context, cat cache.Category, key string, value []byte) error
}

// Result is one analysis of one document.
type Result struct {
	DocumentID string `json:"document_id"`
	Kind       Kind   `json:"kind"`
	Text       string `json:"text"`
	Model      string `json:"model"`
	Cached     bool   `json:"cached"`
}

// Service runs analyses over completed documents.
type Service struct {
	documents DocumentRepo
	router    Router
	results   ResultCache
	logger    *zap.Logger
}

func NewService(documents DocumentRepo, router Router, results ResultCache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{documents: documents, router: router, results: results, logger: log.Named("analysis")}
}

// Analyze returns the requested analysis, computing it on a cache miss.
// Only completed documents owned by userID can be analyzed.
func (s *Service) Analyze(ctx context.Context, userID, documentID string, kind Kind) (*Result, error) {
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, domain.ErrDocumentNotFound
	}
	if doc.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("document %s not ready for analysis (status %s)", documentID, doc.Status)
	}

	key := analysisKey(documentID, kind)
	if text, ok := s.results.Get(ctx, cache.CategoryAnalysis, key); ok {
		return &Result{DocumentID: documentID, Kind: kind, Text: string(text), Cached: true}, nil
	}

	text := doc.Text
	if len(text) > maxAnalysisBytes {
		cut := maxAnalysisBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	prompt := prompts[kind] + "\n\nDocument:\n" + text

	completion, model, err := s.router.Complete(ctx, domain.StrategyFallback, "", systemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	if err := s.results.Set(ctx, cache.CategoryAnalysis, key, []byte(completion.Text)); err != nil && !errors.Is(err, domain.ErrCacheUnavailable) {
		s.logger.Warn("cache analysis failed", zap.Error(err))
	}
	return &Result{DocumentID: documentID, Kind: kind, Text: completion.Text, Model: model}, nil
}

func analysisKey(documentID string, kind Kind) string {
	sum := sha256.Sum256([]byte(documentID + ":" + string(kind)))
	return hex.EncodeToString(sum[:])
}
