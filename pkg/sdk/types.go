package ragline

// DocumentMetadata holds extractor output and pipeline bookkeeping.
type DocumentMetadata struct {
	PageCount      int               `json:"page_count,omitempty"`
	WordCount      int               `json:"word_count,omitempty"`
	ParagraphCount int               `json:"paragraph_count,omitempty"`
	SheetCount     int               `json:"sheet_count,omitempty"`
	RowCount       int               `json:"row_count,omitempty"`
	ColumnCount    int               `json:"column_count,omitempty"`
	Info           map[string]string `json:"info,omitempty"`
	RetryCount     int               `json:"retry_count,omitempty"`
	ChunkCount     int               `json:"chunk_count,omitempty"`
	IndexedAt      string            `json:"indexed_at,omitempty"`
}

// Document is one uploaded document as returned by the API.
type Document struct {
	ID           string           `json:"id"`
	FileName     string           `json:"file_name"`
	FileType     string           `json:"file_type"`
	SizeBytes    int64            `json:"size_bytes"`
	Status       string           `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Metadata     DocumentMetadata `json:"metadata"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
}

// Document lifecycle statuses.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Citation is a source reference attached to an answer.
type Citation struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// QueryRequest asks a question over the caller's documents.
type QueryRequest struct {
	Question       string   `json:"question"`
	DocumentIDs    []string `json:"document_ids,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Strategy       string   `json:"strategy,omitempty"`
	Provider       string   `json:"provider,omitempty"`
}

// QueryResponse is the answer to a query.
type QueryResponse struct {
	Answer         string     `json:"answer"`
	Sources        []Citation `json:"sources"`
	Model          string     `json:"model"`
	ConversationID string     `json:"conversation_id,omitempty"`
	Cached         bool       `json:"cached"`
}

// Message is one conversation turn.
type Message struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Model     string     `json:"model,omitempty"`
	Sources   []Citation `json:"sources,omitempty"`
	CreatedAt string     `json:"created_at"`
}

// Analysis kinds.
const (
	AnalysisSummary   = "summary"
	AnalysisEntities  = "entities"
	AnalysisSentiment = "sentiment"
)

// Analysis is one LLM analysis of a document.
type Analysis struct {
	DocumentID string `json:"document_id"`
	Kind       string `json:"kind"`
	Text       string `json:"text"`
	Model      string `json:"model"`
	Cached     bool   `json:"cached"`
}

// UsageSummary aggregates the caller's usage ledger.
type UsageSummary struct {
	TotalCents   int            `json:"total_cents"`
	CountsByType map[string]int `json:"counts_by_type"`
}

// Health is the service health report. Check values are "ok" or "error".
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
