package domain

// Chunk is a bounded text segment of one document, produced by the chunker.
// Chunks are ephemeral: only the vector and metadata survive in the index.
type Chunk struct {
	DocumentID string
	Index      int
	Text       string
	StartByte  int
	EndByte    int
}

// ScoredChunk is a retrieval hit with its similarity score, used as a citation.
type ScoredChunk struct {
	Chunk
	UserID string
	Score  float64
}
