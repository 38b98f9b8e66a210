package query

import (
	"strings"
	"testing"
)

func refs(texts ...string) []chunkRef {
	out := make([]chunkRef, len(texts))
	for i, t := range texts {
		out[i] = chunkRef{DocumentID: "d1", ChunkIndex: i, Text: t, Score: 1 - float64(i)/10}
	}
	return out
}

func TestBuildPrompt_IncludesContextBlocks(t *testing.T) {
	counter := NewTokenCounter()
	prompt, used := buildPrompt(counter, "what happened?", refs("first chunk", "second chunk"), 3000)

	if len(used) != 2 {
		t.Fatalf("used = %d chunks, want 2", len(used))
	}
	for _, want := range []string{"[1]", "first chunk", "[2]", "second chunk", "Question: what happened?"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPrompt_DropsWholeChunksOverBudget(t *testing.T) {
	counter := NewTokenCounter()
	big := strings.Repeat("lorem ipsum dolor sit amet ", 100)
	prompt, used := buildPrompt(counter, "q?", refs(big, big, big), counter.Count(big)+40)

	if len(used) != 1 {
		t.Fatalf("used = %d chunks, want 1", len(used))
	}
	// The included chunk is intact, not truncated.
	if !strings.Contains(prompt, big) {
		t.Error("included chunk was truncated")
	}
}

func TestBuildPrompt_TopChunkAlwaysIncluded(t *testing.T) {
	counter := NewTokenCounter()
	big := strings.Repeat("word ", 500)
	_, used := buildPrompt(counter, "q?", refs(big), 10)

	if len(used) != 1 {
		t.Fatalf("top chunk must survive a tiny budget, used = %d", len(used))
	}
}

func TestBuildPrompt_NoChunks(t *testing.T) {
	counter := NewTokenCounter()
	prompt, used := buildPrompt(counter, "anything?", nil, 3000)

	if used != nil {
		t.Errorf("used = %v", used)
	}
	if !strings.Contains(prompt, "No relevant passages") {
		t.Errorf("prompt = %q", prompt)
	}
	if !strings.Contains(prompt, "Question: anything?") {
		t.Errorf("prompt missing question: %q", prompt)
	}
}

func TestTokenCounter_Count(t *testing.T) {
	counter := NewTokenCounter()

	if got := counter.Count(""); got != 0 {
		t.Errorf("empty text = %d tokens", got)
	}
	short := counter.Count("hello")
	long := counter.Count(strings.Repeat("hello world ", 50))
	if short <= 0 {
		t.Errorf("short count = %d", short)
	}
	if long <= short {
		t.Errorf("longer text must count more tokens: %d vs %d", long, short)
	}
}
