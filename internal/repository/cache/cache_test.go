package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/db"
	"github.com/ragline/ragline/internal/domain"
)

// --- Mocks ---

type mockStore struct {
	data    map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	deleted []string
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mockStore) Del(_ context.Context, key string) error {
	delete(m.data, key)
	m.deleted = append(m.deleted, key)
	return nil
}

// --- Tests ---

func TestCache_RoundTrip(t *testing.T) {
	store := newMockStore()
	c := New(store, "ragline:", TTLs{}, zap.NewNop())

	if err := c.Set(context.Background(), CategoryQuery, "k1", []byte("answer")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := c.Get(context.Background(), CategoryQuery, "k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != "answer" {
		t.Errorf("value = %q", got)
	}

	if _, exists := store.data["ragline:query:k1"]; !exists {
		t.Errorf("key not namespaced, stored keys: %v", keys(store.data))
	}
}

func TestCache_Miss(t *testing.T) {
	c := New(newMockStore(), "ragline:", TTLs{}, zap.NewNop())

	if _, ok := c.Get(context.Background(), CategoryQuery, "absent"); ok {
		t.Fatal("expected miss")
	}
}

func TestCache_BackendErrorIsAMiss(t *testing.T) {
	store := newMockStore()
	store.getErr = errors.New("connection refused")
	c := New(store, "ragline:", TTLs{}, zap.NewNop())

	if _, ok := c.Get(context.Background(), CategoryQuery, "k1"); ok {
		t.Fatal("backend error must degrade to a miss")
	}
}

func TestCache_NilBackend(t *testing.T) {
	c := New(nil, "ragline:", TTLs{}, zap.NewNop())

	if _, ok := c.Get(context.Background(), CategoryEmbedding, "k1"); ok {
		t.Fatal("nil backend must miss")
	}
	if err := c.Set(context.Background(), CategoryEmbedding, "k1", []byte("v")); !errors.Is(err, domain.ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
}

func TestCache_CategoryTTLs(t *testing.T) {
	store := newMockStore()
	c := New(store, "ragline:", TTLs{
		Embedding: 7 * 24 * time.Hour,
		Query:     time.Hour,
		Analysis:  24 * time.Hour,
	}, zap.NewNop())

	ctx := context.Background()
	_ = c.Set(ctx, CategoryEmbedding, "e", []byte("v"))
	_ = c.Set(ctx, CategoryQuery, "q", []byte("v"))
	_ = c.Set(ctx, CategoryAnalysis, "a", []byte("v"))

	if got := store.ttls["ragline:emb:e"]; got != 7*24*time.Hour {
		t.Errorf("embedding ttl = %v", got)
	}
	if got := store.ttls["ragline:query:q"]; got != time.Hour {
		t.Errorf("query ttl = %v", got)
	}
	if got := store.ttls["ragline:analysis:a"]; got != 24*time.Hour {
		t.Errorf("analysis ttl = %v", got)
	}
}

func TestCache_Delete(t *testing.T) {
	store := newMockStore()
	c := New(store, "ragline:", TTLs{}, zap.NewNop())

	ctx := context.Background()
	_ = c.Set(ctx, CategoryAnalysis, "a", []byte("v"))
	if err := c.Delete(ctx, CategoryAnalysis, "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Get(ctx, CategoryAnalysis, "a"); ok {
		t.Fatal("expected miss after delete")
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
