package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/metrics"
	"github.com/ragline/ragline/internal/repository/cache"
)

// Config holds retrieval and prompt limits.
type Config struct {
	TopK                int
	MinScore            float64
	ContextBudgetTokens int
}

// Request is a question over a user's documents.
type Request struct {
	UserID            string
	Question          string
	DocumentIDs       []string
	ConversationID    string
	Strategy          domain.Strategy
	PreferredProvider string
}

// Response is the assembled answer.
type Response struct {
	Answer         string            `json:"answer"`
	Sources        []domain.Citation `json:"sources"`
	Model          string            `json:"model"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Cached         bool              `json:"cached"`
}

// Service answers questions with retrieval-augmented completion.
type Service struct {
	embedder      domain.Embedder
	retriever     Retriever
	router        Router
	conversations ConversationRepo
	results       ResultCache
	usage         UsageRecorder
	counter       *TokenCounter
	cfg           Config
	logger        *zap.Logger
}

func NewService(
	embedder domain.Embedder,
	retriever Retriever,
	router Router,
	conversations ConversationRepo,
	results ResultCache,
	usage UsageRecorder,
	counter *TokenCounter,
	cfg Config,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.3
	}
	if cfg.ContextBudgetTokens <= 0 {
		cfg.ContextBudgetTokens = 3000
	}
	return &Service{
		embedder:      embedder,
		retriever:     retriever,
		router:        router,
		conversations: conversations,
		results:       results,
		usage:         usage,
		counter:       counter,
		cfg:           cfg,
		logger:        log.Named("query"),
	}
}

// Answer resolves a question: cache lookup, retrieval, completion,
// conversation persistence. A cache hit returns without touching the model
// or the conversation log.
func (s *Service) Answer(ctx context.Context, req Request) (*Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("empty question")
	}

	key := resultKey(req.UserID, question, req.DocumentIDs)
	if data, ok := s.results.Get(ctx, cache.CategoryQuery, key); ok {
		var resp Response
		if err := json.Unmarshal(data, &resp); err == nil {
			metrics.QueryCacheTotal.WithLabelValues("hit").Inc()
			resp.Cached = true
			resp.ConversationID = ""
			return &resp, nil
		}
	}
	metrics.QueryCacheTotal.WithLabelValues("miss").Inc()

	emb, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	scored, err := s.retriever.Query(ctx, emb.Embedding, req.UserID, req.DocumentIDs, s.cfg.TopK, s.cfg.MinScore)
	if err != nil {
		return nil, err
	}

	refs := make([]chunkRef, len(scored))
	for i, sc := range scored {
		refs[i] = chunkRef{
			DocumentID: sc.DocumentID,
			ChunkIndex: sc.Index,
			Text:       sc.Text,
			Score:      sc.Score,
		}
	}
	prompt, used := buildPrompt(s.counter, question, refs, s.cfg.ContextBudgetTokens)

	completion, model, err := s.router.Complete(ctx, req.Strategy, req.PreferredProvider, systemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	sources := make([]domain.Citation, len(used))
	for i, c := range used {
		sources[i] = domain.Citation{
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			Score:      c.Score,
		}
	}

	resp := &Response{
		Answer:  completion.Text,
		Sources: sources,
		Model:   model,
	}

	convID, err := s.persist(ctx, req, question, resp)
	if err != nil {
		// The answer is already computed; persistence failures must not
		// lose it for the caller.
		s.logger.Warn("persist conversation failed", zap.Error(err))
	}
	resp.ConversationID = convID

	s.usage.Record(ctx, req.UserID, domain.ActionQuery, map[string]string{"model": model})

	if data, err := json.Marshal(Response{Answer: resp.Answer, Sources: resp.Sources, Model: resp.Model}); err == nil {
		if err := s.results.Set(ctx, cache.CategoryQuery, key, data); err != nil && !errors.Is(err, domain.ErrCacheUnavailable) {
			s.logger.Warn("cache answer failed", zap.Error(err))
		}
	}
	return resp, nil
}

func (s *Service) persist(ctx context.Context, req Request, question string, resp *Response) (string, error) {
	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
		conv := &domain.Conversation{
			ID:        convID,
			UserID:    req.UserID,
			Title:     conversationTitle(question),
			CreatedAt: time.Now().UTC(),
		}
		if len(req.DocumentIDs) == 1 {
			conv.DocumentID = req.DocumentIDs[0]
		}
		if err := s.conversations.Create(ctx, conv); err != nil {
			return "", err
		}
	} else {
		conv, err := s.conversations.Get(ctx, convID)
		if err != nil {
			return "", err
		}
		if conv.UserID != req.UserID {
			return "", domain.ErrConversationNotFound
		}
	}

	now := time.Now().UTC()
	userMsg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Role:           domain.RoleUser,
		Content:        question,
		CreatedAt:      now,
	}
	if err := s.conversations.AppendMessage(ctx, userMsg); err != nil {
		return convID, err
	}
	assistantMsg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Role:           domain.RoleAssistant,
		Content:        resp.Answer,
		Model:          resp.Model,
		Sources:        resp.Sources,
		CreatedAt:      now.Add(time.Millisecond),
	}
	if err := s.conversations.AppendMessage(ctx, assistantMsg); err != nil {
		return convID, err
	}
	return convID, nil
}

// Messages returns a conversation's history for its owner.
func (s *Service) Messages(ctx context.Context, userID, conversationID string) ([]*domain.Message, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, domain.ErrConversationNotFound
	}
	return s.conversations.ListMessages(ctx, conversationID)
}

// resultKey derives the cache key from the owner, the normalized question
// and the sorted document scope. Retrieval is owner-filtered, so the owner
// is part of the result's identity: without it one user's cached answer
// (and its source text) would serve another user's identical question.
func resultKey(userID, question string, documentIDs []string) string {
	ids := append([]string(nil), documentIDs...)
	sort.Strings(ids)
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(question))))
	for _, id := range ids {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func conversationTitle(question string) string {
	const max = 80
	if len(question) <= max {
		return question
	}
	cut := question[:max]
	if i := strings.LastIndexByte(cut, ' '); i > max/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
