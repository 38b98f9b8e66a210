// Package chunker splits document text into overlapping fixed-size segments.
// Chunking is deterministic: identical text and parameters always yield
// identical boundaries, so re-indexing after a retry cannot fragment
// differently and duplicate near-identical vectors.
package chunker

import (
	"unicode/utf8"

	"github.com/ragline/ragline/internal/domain"
)

// DefaultChunkSize is the default number of bytes per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping bytes.
const DefaultChunkOverlap = 200

// Chunker produces ordered overlapping chunks with byte offsets.
type Chunker struct {
	size    int
	overlap int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in bytes.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap between chunks in bytes.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(c)
	}
	// Overlap must leave room for forward progress
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	if c.size < utf8.UTFMax {
		c.size = utf8.UTFMax
	}
	return c
}

// Split cuts text into chunks of at most size bytes, stepping by
// size-overlap. Boundaries are snapped to rune starts so chunk text is
// always valid UTF-8. Trailing content shorter than one chunk is kept;
// empty text produces no chunks.
func (c *Chunker) Split(documentID, text string) []domain.Chunk {
	if text == "" {
		return nil
	}

	step := c.size - c.overlap
	chunks := make([]domain.Chunk, 0, len(text)/step+1)

	start := 0
	for index := 0; start < len(text); index++ {
		end := start + c.size
		if end >= len(text) {
			end = len(text)
		} else {
			for end > start && !utf8.RuneStart(text[end]) {
				end--
			}
			// A window with no rune start (invalid UTF-8) would back off to
			// an empty chunk; emit the raw window instead.
			if end == start {
				end = start + c.size
			}
		}

		chunks = append(chunks, domain.Chunk{
			DocumentID: documentID,
			Index:      index,
			Text:       text[start:end],
			StartByte:  start,
			EndByte:    end,
		})

		if end == len(text) {
			break
		}

		next := start + step
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}

	return chunks
}
