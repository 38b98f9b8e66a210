package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/ragline/ragline/internal/domain"
)

// PDF extracts concatenated page text and document info from PDF files.
type PDF struct{}

// NewPDF creates a PDF extractor.
func NewPDF() *PDF { return &PDF{} }

// FileType implements Extractor.
func (e *PDF) FileType() domain.FileType { return domain.FilePDF }

// Extract parses the buffer as a PDF and returns page text plus page count
// and document info (title, author, dates).
func (e *PDF) Extract(_ context.Context, data []byte) (res *Result, err error) {
	// The parser panics on some malformed inputs; a corrupt upload must
	// surface as an ExtractionError, not crash the process.
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = domain.NewExtractionError(domain.FilePDF, fmt.Errorf("parser panic: %v", r))
		}
	}()

	if len(data) == 0 {
		return nil, domain.NewExtractionError(domain.FilePDF, errors.New("empty buffer"))
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.NewExtractionError(domain.FilePDF, err)
	}

	pageCount := reader.NumPage()
	var sb strings.Builder
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page does not fail the document.
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	meta := domain.DocumentMetadata{
		PageCount: pageCount,
		Info:      documentInfo(reader),
	}
	meta.WordCount = len(strings.Fields(sb.String()))

	return &Result{Text: strings.TrimSpace(sb.String()), Metadata: meta}, nil
}

// documentInfo reads the trailer Info dictionary (title, author, dates).
func documentInfo(reader *pdf.Reader) map[string]string {
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return nil
	}

	out := make(map[string]string)
	for pdfKey, name := range map[string]string{
		"Title":        "title",
		"Author":       "author",
		"CreationDate": "created",
		"ModDate":      "modified",
	} {
		v := info.Key(pdfKey)
		if v.Kind() == pdf.String && v.RawString() != "" {
			out[name] = v.RawString()
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
