// Package docconv is the boundary to document-to-text conversion. The
// extraction core only ever sees converted text plus optional structural
// metadata (tables); it never touches raw uploads.
package docconv

import (
	"context"
	"strings"
)

// Table is one extracted table from a converted document.
type Table struct {
	Title   string     `json:"title,omitempty"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Document is the conversion output consumed by the core.
type Document struct {
	Text   string  `json:"text"`
	Tables []Table `json:"tables,omitempty"`
}

// Converter produces a Document from pre-converted text. Implementations
// backed by a real conversion pipeline (OCR, PDF layout analysis) live
// outside this module; the bundled implementation recovers structure from
// markdown produced by such a pipeline.
type Converter interface {
	Convert(ctx context.Context, text string) (*Document, error)
}

// MarkdownConverter recovers tables from markdown text. Conversion
// pipelines emit GitHub-style pipe tables, which carry most of the
// structured data (payment schedules, milestone lists) in contracts.
type MarkdownConverter struct{}

// NewMarkdownConverter creates a markdown structure converter.
func NewMarkdownConverter() *MarkdownConverter {
	return &MarkdownConverter{}
}

// Convert parses pipe tables out of markdown text.
func (m *MarkdownConverter) Convert(ctx context.Context, text string) (*Document, error) {
	doc := &Document{Text: text}

	lines := strings.Split(text, "\n")
	var current *Table
	var lastHeading string

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		if strings.HasPrefix(line, "#") {
			lastHeading = strings.TrimSpace(strings.TrimLeft(line, "#"))
		}

		if !isTableRow(line) {
			if current != nil {
				doc.Tables = append(doc.Tables, *current)
				current = nil
			}
			continue
		}

		cells := splitRow(line)

		// A header row must be followed by a separator row.
		if current == nil {
			if i+1 < len(lines) && isSeparatorRow(strings.TrimSpace(lines[i+1])) {
				current = &Table{Title: lastHeading, Headers: cells}
				i++ // skip separator
			}
			continue
		}

		current.Rows = append(current.Rows, cells)
	}

	if current != nil {
		doc.Tables = append(doc.Tables, *current)
	}

	return doc, nil
}

func isTableRow(line string) bool {
	return strings.HasPrefix(line, "|") && strings.Count(line, "|") >= 2
}

func isSeparatorRow(line string) bool {
	if !isTableRow(line) {
		return false
	}
	stripped := strings.Trim(line, "| ")
	for _, r := range stripped {
		switch r {
		case '-', ':', '|', ' ':
		default:
			return false
		}
	}
	return strings.Contains(stripped, "-")
}

func splitRow(line string) []string {
	line = strings.Trim(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

var _ Converter = (*MarkdownConverter)(nil)
