package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"html"
	"io"
	"strings"

	"github.com/ragline/ragline/internal/domain"
)

// DOCX extracts plain text and an HTML rendering from Word documents.
// DOCX is a ZIP archive; the text lives in word/document.xml.
type DOCX struct{}

// NewDOCX creates a DOCX extractor.
func NewDOCX() *DOCX { return &DOCX{} }

// FileType implements Extractor.
func (e *DOCX) FileType() domain.FileType { return domain.FileDOCX }

// Extract parses the buffer as a DOCX archive and returns paragraph text,
// an HTML rendering for display, and word/paragraph counts.
func (e *DOCX) Extract(_ context.Context, data []byte) (*Result, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.NewExtractionError(domain.FileDOCX, err)
	}

	paragraphs, err := extractParagraphs(reader)
	if err != nil {
		return nil, domain.NewExtractionError(domain.FileDOCX, err)
	}

	text := strings.Join(paragraphs, "\n\n")

	var htmlSB strings.Builder
	for _, p := range paragraphs {
		htmlSB.WriteString("<p>")
		htmlSB.WriteString(html.EscapeString(p))
		htmlSB.WriteString("</p>\n")
	}

	meta := domain.DocumentMetadata{
		WordCount:      len(strings.Fields(text)),
		ParagraphCount: len(paragraphs),
	}

	return &Result{Text: text, HTML: htmlSB.String(), Metadata: meta}, nil
}

// documentXML mirrors the parts of word/document.xml we read.
type documentXML struct {
	Body struct {
		Paragraphs []paragraphXML `xml:"p"`
	} `xml:"body"`
}

type paragraphXML struct {
	Runs []runXML `xml:"r"`
}

type runXML struct {
	Texts []string `xml:"t"`
}

// extractParagraphs reads word/document.xml and returns non-empty paragraphs.
func extractParagraphs(reader *zip.Reader) ([]string, error) {
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}

		var doc documentXML
		if err := xml.Unmarshal(content, &doc); err != nil {
			return nil, err
		}

		var paragraphs []string
		for _, p := range doc.Body.Paragraphs {
			var sb strings.Builder
			for _, r := range p.Runs {
				for _, t := range r.Texts {
					sb.WriteString(t)
				}
			}
			if s := strings.TrimSpace(sb.String()); s != "" {
				paragraphs = append(paragraphs, s)
			}
		}
		return paragraphs, nil
	}
	return nil, errors.New("word/document.xml not found")
}
