package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/repository/cache"
)

// --- Mocks ---

type mockEmbedder struct {
	calls int
	err   error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

type mockRetriever struct {
	chunks []domain.ScoredChunk
	err    error
}

// Query filters by owner like the real index does.
func (m *mockRetriever) Query(_ context.Context, _ []float32, userID string, _ []string, _ int, _ float64) ([]domain.ScoredChunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.ScoredChunk
	for _, c := range m.chunks {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockRouter struct {
	calls      int
	lastPrompt string
	lastSystem string
	err        error
}

func (m *mockRouter) Complete(_ context.Context, _ domain.Strategy, _, system, prompt string) (domain.Completion, string, error) {
	m.calls++
	m.lastSystem = system
	m.lastPrompt = prompt
	if m.err != nil {
		return domain.Completion{}, "", m.err
	}
	return domain.Completion{Text: "the answer"}, "test-model", nil
}

type mockConvRepo struct {
	conversations map[string]*domain.Conversation
	messages      []*domain.Message
}

func newMockConvRepo() *mockConvRepo {
	return &mockConvRepo{conversations: make(map[string]*domain.Conversation)}
}

func (m *mockConvRepo) Create(_ context.Context, c *domain.Conversation) error {
	m.conversations[c.ID] = c
	return nil
}

func (m *mockConvRepo) Get(_ context.Context, id string) (*domain.Conversation, error) {
	c, ok := m.conversations[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return c, nil
}

func (m *mockConvRepo) AppendMessage(_ context.Context, msg *domain.Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockConvRepo) ListMessages(_ context.Context, conversationID string) ([]*domain.Message, error) {
	var out []*domain.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type mockCache struct {
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (m *mockCache) Get(_ context.Context, cat cache.Category, key string) ([]byte, bool) {
	v, ok := m.data[string(cat)+":"+key]
	return v, ok
}

func (m *mockCache) Set(_ context.Context, cat cache.Category, key string, value []byte) error {
	m.data[string(cat)+":"+key] = value
	return nil
}

type mockUsage struct {
	actions []domain.Action
}

func (m *mockUsage) Record(_ context.Context, _ string, action domain.Action, _ map[string]string) {
	m.actions = append(m.actions, action)
}

type fixture struct {
	emb    *mockEmbedder
	ret    *mockRetriever
	router *mockRouter
	conv   *mockConvRepo
	cache  *mockCache
	usage  *mockUsage
	svc    *Service
}

func newFixture() *fixture {
	f := &fixture{
		emb: &mockEmbedder{},
		ret: &mockRetriever{chunks: []domain.ScoredChunk{
			{Chunk: domain.Chunk{DocumentID: "d1", Index: 0, Text: "relevant text"}, UserID: "u1", Score: 0.9},
		}},
		router: &mockRouter{},
		conv:   newMockConvRepo(),
		cache:  newMockCache(),
		usage:  &mockUsage{},
	}
	f.svc = NewService(f.emb, f.ret, f.router, f.conv, f.cache, f.usage,
		NewTokenCounter(), Config{TopK: 5, MinScore: 0.3, ContextBudgetTokens: 3000}, zap.NewNop())
	return f
}

// --- Tests ---

func TestAnswer_FullFlow(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.Answer(context.Background(), Request{UserID: "u1", Question: "what is relevant?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != "the answer" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.Model != "test-model" {
		t.Errorf("model = %q", resp.Model)
	}
	if resp.Cached {
		t.Error("first answer must not be cached")
	}
	if len(resp.Sources) != 1 || resp.Sources[0].DocumentID != "d1" {
		t.Errorf("sources = %+v", resp.Sources)
	}
	if resp.ConversationID == "" {
		t.Error("conversation must be created")
	}

	// One user message plus one assistant message, with citations on the latter.
	if len(f.conv.messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(f.conv.messages))
	}
	if f.conv.messages[0].Role != domain.RoleUser || f.conv.messages[1].Role != domain.RoleAssistant {
		t.Errorf("roles = %s, %s", f.conv.messages[0].Role, f.conv.messages[1].Role)
	}
	if len(f.conv.messages[1].Sources) != 1 {
		t.Errorf("assistant sources = %+v", f.conv.messages[1].Sources)
	}

	if len(f.usage.actions) != 1 || f.usage.actions[0] != domain.ActionQuery {
		t.Errorf("usage = %v", f.usage.actions)
	}
}

func TestAnswer_CacheHit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Answer(ctx, Request{UserID: "u1", Question: "what is relevant?"})
	if err != nil {
		t.Fatalf("first answer: %v", err)
	}

	second, err := f.svc.Answer(ctx, Request{UserID: "u1", Question: "what is relevant?"})
	if err != nil {
		t.Fatalf("second answer: %v", err)
	}
	if !second.Cached {
		t.Fatal("expected a cache hit")
	}
	if second.Answer != first.Answer {
		t.Errorf("cached answer differs: %q vs %q", second.Answer, first.Answer)
	}
	if second.ConversationID != "" {
		t.Error("a cache hit must not start a conversation")
	}
	if f.router.calls != 1 {
		t.Errorf("model calls = %d, want 1", f.router.calls)
	}
	if len(f.conv.messages) != 2 {
		t.Errorf("cache hit must not persist new messages, got %d", len(f.conv.messages))
	}
}

func TestAnswer_NormalizedCacheKey(t *testing.T) {
	a := resultKey("u1", "  What Is Relevant?  ", []string{"d2", "d1"})
	b := resultKey("u1", "what is relevant?", []string{"d1", "d2"})
	if a != b {
		t.Error("key must be case, whitespace and document-order insensitive")
	}

	c := resultKey("u1", "what is relevant?", []string{"d1"})
	if a == c {
		t.Error("different document scope must produce a different key")
	}

	d := resultKey("u2", "what is relevant?", []string{"d1", "d2"})
	if a == d {
		t.Error("different owner must produce a different key")
	}
}

func TestAnswer_CacheScopedToUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// First user's answer is grounded in their chunk and cached.
	first, err := f.svc.Answer(ctx, Request{UserID: "u1", Question: "what is relevant?"})
	if err != nil {
		t.Fatalf("first user: %v", err)
	}
	if len(first.Sources) != 1 {
		t.Fatalf("first user sources = %+v", first.Sources)
	}

	// A second user asking the identical question owns no chunks; the
	// cached entry must not serve them the first user's answer or sources.
	second, err := f.svc.Answer(ctx, Request{UserID: "u2", Question: "what is relevant?"})
	if err != nil {
		t.Fatalf("second user: %v", err)
	}
	if second.Cached {
		t.Fatal("second user must not hit the first user's cache entry")
	}
	if len(second.Sources) != 0 {
		t.Errorf("second user received foreign sources: %+v", second.Sources)
	}
	if f.router.calls != 2 {
		t.Errorf("model calls = %d, want 2 (one per user)", f.router.calls)
	}
}

func TestAnswer_NoChunksStillAnswers(t *testing.T) {
	f := newFixture()
	f.ret.chunks = nil

	resp, err := f.svc.Answer(context.Background(), Request{UserID: "u1", Question: "anything?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.router.calls != 1 {
		t.Fatal("model must still be called without retrieved context")
	}
	if len(resp.Sources) != 0 {
		t.Errorf("sources = %+v", resp.Sources)
	}
	if !strings.Contains(f.router.lastPrompt, "No relevant passages") {
		t.Errorf("prompt missing no-context preamble: %q", f.router.lastPrompt)
	}
}

func TestAnswer_ContinuesConversation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Answer(ctx, Request{UserID: "u1", Question: "first question?"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	second, err := f.svc.Answer(ctx, Request{
		UserID:         "u1",
		Question:       "follow up?",
		ConversationID: first.ConversationID,
	})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.ConversationID != first.ConversationID {
		t.Errorf("conversation id changed: %s vs %s", second.ConversationID, first.ConversationID)
	}
	if len(f.conv.conversations) != 1 {
		t.Errorf("conversations = %d, want 1", len(f.conv.conversations))
	}
	if len(f.conv.messages) != 4 {
		t.Errorf("messages = %d, want 4", len(f.conv.messages))
	}
}

func TestAnswer_ForeignConversationRejected(t *testing.T) {
	f := newFixture()
	f.conv.conversations["conv-1"] = &domain.Conversation{ID: "conv-1", UserID: "someone-else"}

	resp, err := f.svc.Answer(context.Background(), Request{
		UserID:         "u1",
		Question:       "question?",
		ConversationID: "conv-1",
	})
	// The answer still comes back; it just is not attached to the foreign
	// conversation.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ConversationID != "" {
		t.Errorf("answer attached to foreign conversation %q", resp.ConversationID)
	}
	if len(f.conv.messages) != 0 {
		t.Errorf("messages appended to foreign conversation: %d", len(f.conv.messages))
	}
}

func TestAnswer_AllProvidersFailed(t *testing.T) {
	f := newFixture()
	f.router.err = &domain.QueryError{Failures: []domain.ProviderFailure{{Provider: "p1", Reason: "down"}}}

	_, err := f.svc.Answer(context.Background(), Request{UserID: "u1", Question: "question?"})
	var qerr *domain.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected *domain.QueryError, got %v", err)
	}
	if len(f.conv.messages) != 0 {
		t.Error("nothing must be persisted when no provider answered")
	}
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Answer(context.Background(), Request{UserID: "u1", Question: "   "}); err == nil {
		t.Fatal("expected error for empty question")
	}
}

func TestMessages_OwnershipEnforced(t *testing.T) {
	f := newFixture()
	f.conv.conversations["conv-1"] = &domain.Conversation{ID: "conv-1", UserID: "someone-else"}

	_, err := f.svc.Messages(context.Background(), "u1", "conv-1")
	if !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

