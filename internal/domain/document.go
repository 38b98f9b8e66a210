package domain

import "time"

// FileType enumerates supported document formats.
type FileType string

const (
	// FilePDF is a PDF document.
	FilePDF FileType = "pdf"
	// FileDOCX is a Word document.
	FileDOCX FileType = "docx"
	// FileXLSX is an Excel workbook.
	FileXLSX FileType = "xlsx"
)

// ParseFileType validates a file type string.
func ParseFileType(s string) (FileType, error) {
	switch FileType(s) {
	case FilePDF, FileDOCX, FileXLSX:
		return FileType(s), nil
	default:
		return "", ErrUnsupportedFileType
	}
}

// Status is the document lifecycle state.
type Status string

const (
	// StatusUploaded means the raw file is stored but not yet processed.
	StatusUploaded Status = "uploaded"
	// StatusProcessing means a pipeline run is in flight.
	StatusProcessing Status = "processing"
	// StatusCompleted means extraction succeeded and text is persisted.
	// Indexing may still be in progress: display-readiness and
	// search-readiness are separate milestones.
	StatusCompleted Status = "completed"
	// StatusError means the pipeline failed; ErrorMessage carries the cause.
	StatusError Status = "error"
)

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
	IndexedAt      *time.Time        `json:"indexed_at,omitempty"`
}

// Document is an uploaded file moving through the ingestion pipeline.
type Document struct {
	ID           string
	UserID       string
	FileName     string
	FileType     FileType
	SizeBytes    int64
	StorageKey   string
	Status       Status
	ErrorMessage string
	Text         string
	Metadata     DocumentMetadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SheetTable is the structured form of one spreadsheet sheet.
type SheetTable struct {
	Name    string     `json:"name"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}
