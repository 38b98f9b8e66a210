package query

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const systemPrompt = "You are a document assistant. Answer the question " +
	"using only the provided context. Cite sources as [n] where n is the " +
	"context block number. If the context does not contain the answer, say so."

const noContextPreamble = "No relevant passages were found in the selected " +
	"documents. Answer from general knowledge and state that the documents " +
	"do not cover the question."

// TokenCounter counts prompt tokens for budget enforcement.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads the cl100k_base encoding from the bundled offline
// assets. When the encoding cannot be loaded a byte-length heuristic is used
// instead so queries keep working.
func NewTokenCounter() *TokenCounter {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

// Count returns the token count of text.
func (t *TokenCounter) Count(text string) int {
	if t.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(t.enc.Encode(text, nil, nil))
}

// buildPrompt assembles the user prompt from ranked chunks within the token
// budget. Chunks are taken in rank order and dropped whole once the budget
// is exhausted; a chunk is never truncated mid-text.
func buildPrompt(counter *TokenCounter, question string, chunks []chunkRef, budget int) (string, []chunkRef) {
	if budget <= 0 {
		budget = 3000
	}

	var (
		b    strings.Builder
		used []chunkRef
		sum  int
	)
	for _, c := range chunks {
		block := fmt.Sprintf("[%d] (document %s, chunk %d)\n%s\n\n", len(used)+1, c.DocumentID, c.ChunkIndex, c.Text)
		n := counter.Count(block)
		// The top chunk always goes in, even when it alone exceeds the
		// budget; everything else must fit whole.
		if sum+n > budget && len(used) > 0 {
			break
		}
		sum += n
		b.WriteString(block)
		used = append(used, c)
	}

	if len(used) == 0 {
		return noContextPreamble + "\n\nQuestion: " + question, nil
	}
	return "Context:\n\n" + b.String() + "Question: " + question, used
}

type chunkRef struct {
	DocumentID string
	ChunkIndex int
	Text       string
	Score      float64
}
