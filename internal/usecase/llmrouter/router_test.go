package llmrouter

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain"
)

// --- Mocks ---

type mockProvider struct {
	name  string
	model string
	err   error
	calls int
}

func (m *mockProvider) Name() string  { return m.name }
func (m *mockProvider) Model() string { return m.model }

func (m *mockProvider) Complete(_ context.Context, _, _ string) (domain.Completion, error) {
	m.calls++
	if m.err != nil {
		return domain.Completion{}, m.err
	}
	return domain.Completion{Text: "answer from " + m.name}, nil
}

func provider(name string, cost int, latency time.Duration, err error) (*Provider, *mockProvider) {
	m := &mockProvider{name: name, model: name + "-model", err: err}
	return &Provider{
		LLMProvider:         m,
		CostPerMillionCents: cost,
		TypicalLatency:      latency,
	}, m
}

func newRouter(providers ...*Provider) *Router {
	return New(providers, 3, time.Minute, zap.NewNop())
}

// --- Tests ---

func TestComplete_FirstProviderWins(t *testing.T) {
	p1, m1 := provider("alpha", 10, time.Second, nil)
	p2, m2 := provider("beta", 5, time.Second, nil)

	completion, model, err := newRouter(p1, p2).Complete(
		context.Background(), domain.StrategyFallback, "", "sys", "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completion.Text != "answer from alpha" {
		t.Errorf("answer = %q", completion.Text)
	}
	if model != "alpha-model" {
		t.Errorf("model = %q", model)
	}
	if m1.calls != 1 || m2.calls != 0 {
		t.Errorf("calls: alpha=%d beta=%d", m1.calls, m2.calls)
	}
}

func TestComplete_FallsThroughOnFailure(t *testing.T) {
	p1, m1 := provider("alpha", 10, time.Second, errors.New("rate limited"))
	p2, m2 := provider("beta", 5, time.Second, nil)

	completion, _, err := newRouter(p1, p2).Complete(
		context.Background(), domain.StrategyFallback, "", "sys", "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completion.Text != "answer from beta" {
		t.Errorf("answer = %q", completion.Text)
	}
	if m1.calls != 1 || m2.calls != 1 {
		t.Errorf("calls: alpha=%d beta=%d", m1.calls, m2.calls)
	}
}

func TestComplete_CostStrategy(t *testing.T) {
	p1, m1 := provider("expensive", 100, time.Second, nil)
	p2, m2 := provider("cheap", 5, 2*time.Second, nil)

	_, model, err := newRouter(p1, p2).Complete(
		context.Background(), domain.StrategyCost, "", "sys", "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "cheap-model" {
		t.Errorf("model = %q, want cheapest first", model)
	}
	if m2.calls != 1 || m1.calls != 0 {
		t.Errorf("calls: expensive=%d cheap=%d", m1.calls, m2.calls)
	}
}

func TestComplete_PerformanceStrategy(t *testing.T) {
	p1, _ := provider("slow", 5, 3*time.Second, nil)
	p2, m2 := provider("fast", 100, 200*time.Millisecond, nil)

	_, model, err := newRouter(p1, p2).Complete(
		context.Background(), domain.StrategyPerformance, "", "sys", "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "fast-model" {
		t.Errorf("model = %q, want fastest first", model)
	}
	if m2.calls != 1 {
		t.Errorf("fast provider calls = %d", m2.calls)
	}
}

func TestComplete_PreferredProviderFirst(t *testing.T) {
	p1, m1 := provider("alpha", 10, time.Second, nil)
	p2, m2 := provider("beta", 5, time.Second, nil)

	_, model, err := newRouter(p1, p2).Complete(
		context.Background(), domain.StrategyFallback, "beta", "sys", "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "beta-model" {
		t.Errorf("model = %q, want preferred provider", model)
	}
	if m1.calls != 0 || m2.calls != 1 {
		t.Errorf("calls: alpha=%d beta=%d", m1.calls, m2.calls)
	}
}

func TestComplete_AllFail(t *testing.T) {
	p1, _ := provider("alpha", 10, time.Second, errors.New("timeout"))
	p2, _ := provider("beta", 5, time.Second, errors.New("500 from upstream"))
	p3, _ := provider("gamma", 1, time.Second, errors.New("bad key"))

	_, _, err := newRouter(p1, p2, p3).Complete(
		context.Background(), domain.StrategyFallback, "", "sys", "prompt")
	if err == nil {
		t.Fatal("expected error")
	}

	var qerr *domain.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected *domain.QueryError, got %T", err)
	}
	if len(qerr.Failures) != 3 {
		t.Fatalf("expected 3 failures, got %d", len(qerr.Failures))
	}
	want := map[string]string{"alpha": "timeout", "beta": "500 from upstream", "gamma": "bad key"}
	for _, f := range qerr.Failures {
		if want[f.Provider] != f.Reason {
			t.Errorf("failure %s = %q, want %q", f.Provider, f.Reason, want[f.Provider])
		}
	}
}

func TestComplete_SkipsOpenBreaker(t *testing.T) {
	boom := errors.New("down")
	p1, m1 := provider("alpha", 10, time.Second, boom)
	p2, _ := provider("beta", 5, time.Second, nil)
	r := New([]*Provider{p1, p2}, 2, time.Hour, zap.NewNop())

	ctx := context.Background()
	// Two failing rounds trip alpha's breaker.
	for i := 0; i < 2; i++ {
		if _, _, err := r.Complete(ctx, domain.StrategyFallback, "", "sys", "prompt"); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}
	if m1.calls != 2 {
		t.Fatalf("alpha calls before open = %d", m1.calls)
	}

	// Breaker now open: alpha is skipped without a call.
	if _, _, err := r.Complete(ctx, domain.StrategyFallback, "", "sys", "prompt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m1.calls != 2 {
		t.Errorf("alpha called while its breaker is open, calls = %d", m1.calls)
	}
}

func TestComplete_OpenBreakerReportedInFailures(t *testing.T) {
	p1, _ := provider("alpha", 10, time.Second, errors.New("down"))
	r := New([]*Provider{p1}, 1, time.Hour, zap.NewNop())

	ctx := context.Background()
	_, _, _ = r.Complete(ctx, domain.StrategyFallback, "", "sys", "prompt")

	_, _, err := r.Complete(ctx, domain.StrategyFallback, "", "sys", "prompt")
	var qerr *domain.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected *domain.QueryError, got %v", err)
	}
	if len(qerr.Failures) != 1 || qerr.Failures[0].Reason != "circuit open" {
		t.Errorf("failures = %+v", qerr.Failures)
	}
}
