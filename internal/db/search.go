package db

// KNNQuery is the input for vector similarity search over chunk hashes.
// UserID is mandatory; DocumentIDs optionally narrows the scope.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	UserID       string
	DocumentIDs  []string
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit from a search. Score is cosine similarity
// (1 - distance), higher is closer.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
