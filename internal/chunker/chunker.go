// Package chunker splits contract text into bounded, metadata-tagged
// segments. Structural markers (markdown headings, numbered articles)
// drive the split when present; otherwise fixed-size windowing is used.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/extractd/internal/fields"
)

// Split strategies reported in Result.Strategy.
const (
	StrategyStructural = "structural"
	StrategyFallback   = "fallback"
)

// Position locates a chunk within the source text.
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Page  int `json:"page,omitempty"` // best-effort hint, 0 when unknown
}

// Metadata carries best-effort semantic tags for a chunk.
type Metadata struct {
	SemanticType  string                   `json:"semantic_type"`
	Title         string                   `json:"title,omitempty"`
	ArticleNumber string                   `json:"article_number,omitempty"`
	Priority      int                      `json:"priority"` // higher is more relevant
	Relevance     []fields.InformationType `json:"relevance,omitempty"`
}

// Chunk is one immutable slice of the source document.
type Chunk struct {
	ID       string   `json:"id"`
	Index    int      `json:"index"`
	Total    int      `json:"total"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Position Position `json:"position"`
}

// Result is the chunking outcome. Success is false only for empty input.
type Result struct {
	Chunks      []Chunk `json:"chunks"`
	Strategy    string  `json:"strategy"`
	TotalLength int     `json:"total_length"`
	Success     bool    `json:"success"`
}

// Config controls chunk sizing.
type Config struct {
	// MinChunkSize is the minimum chunk length in bytes. Every chunk
	// except possibly the final one is at least this long.
	MinChunkSize int

	// WindowSize is the fallback window length when no structural
	// markers are found.
	WindowSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinChunkSize: 500,
		WindowSize:   2000,
	}
}

// Chunker splits documents per its config.
type Chunker struct {
	cfg Config
}

// New creates a chunker. Zero config fields fall back to defaults.
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = def.MinChunkSize
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.WindowSize < cfg.MinChunkSize {
		cfg.WindowSize = cfg.MinChunkSize
	}
	return &Chunker{cfg: cfg}
}

// Structural markers: markdown headings, "Article 3" / "Section 2.1"
// style lines, and bare numbered clauses like "3.1 Payment".
var markerRe = regexp.MustCompile(`(?m)^(#{1,4}\s+.+|(?:Article|ARTICLE|Section|SECTION|Clause|CLAUSE)\s+\d+[A-Za-z0-9.]*\b.*|\d{1,2}(?:\.\d{1,2})*\s+[A-Z].{0,80})$`)

var articleNumRe = regexp.MustCompile(`(?i)(?:article|section|clause)\s+(\d+[A-Za-z0-9.]*)|^(\d{1,2}(?:\.\d{1,2})*)\s`)

// Chunk splits text into metadata-tagged chunks. It never returns an
// error for empty input; the result carries Success=false instead.
func (c *Chunker) Chunk(text string, minChunkSize int) Result {
	if minChunkSize <= 0 {
		minChunkSize = c.cfg.MinChunkSize
	}

	if strings.TrimSpace(text) == "" {
		return Result{Chunks: []Chunk{}, Strategy: StrategyStructural, TotalLength: len(text), Success: false}
	}

	boundaries := c.findBoundaries(text)
	strategy := StrategyStructural
	if len(boundaries) <= 1 {
		boundaries = c.windowBoundaries(text)
		strategy = StrategyFallback
	}

	chunks := c.build(text, boundaries, minChunkSize)
	for i := range chunks {
		chunks[i].Total = len(chunks)
		chunks[i].Metadata = tagChunk(chunks[i].Text)
	}

	return Result{
		Chunks:      chunks,
		Strategy:    strategy,
		TotalLength: len(text),
		Success:     true,
	}
}

// findBoundaries returns segment start offsets derived from structural
// markers. Offset 0 is always included so spans cover the full input.
func (c *Chunker) findBoundaries(text string) []int {
	locs := markerRe.FindAllStringIndex(text, -1)
	boundaries := []int{0}
	for _, loc := range locs {
		if loc[0] > 0 {
			boundaries = append(boundaries, loc[0])
		}
	}
	return boundaries
}

// windowBoundaries slices the text into fixed windows, breaking at the
// nearest newline after each window where possible.
func (c *Chunker) windowBoundaries(text string) []int {
	boundaries := []int{0}
	pos := 0
	for pos+c.cfg.WindowSize < len(text) {
		next := pos + c.cfg.WindowSize
		if nl := strings.IndexByte(text[next:], '\n'); nl >= 0 && next+nl+1 < len(text) {
			next += nl + 1
		}
		boundaries = append(boundaries, next)
		pos = next
	}
	return boundaries
}

// build materializes chunks from boundaries, accumulating segments until
// the minimum size is reached. An undersized trailing fragment is merged
// into the previous chunk.
func (c *Chunker) build(text string, boundaries []int, minSize int) []Chunk {
	var chunks []Chunk
	bufStart := boundaries[0]

	flush := func(end int) {
		chunks = append(chunks, Chunk{
			ID:       uuid.New().String(),
			Index:    len(chunks),
			Text:     text[bufStart:end],
			Position: Position{Start: bufStart, End: end},
		})
		bufStart = end
	}

	for i := 1; i < len(boundaries); i++ {
		if boundaries[i]-bufStart >= minSize {
			flush(boundaries[i])
		}
	}

	// Trailing fragment: merge into the previous chunk when undersized.
	if bufStart < len(text) {
		if len(text)-bufStart < minSize && len(chunks) > 0 {
			last := &chunks[len(chunks)-1]
			last.Text = text[last.Position.Start:]
			last.Position.End = len(text)
		} else {
			flush(len(text))
		}
	}

	return chunks
}

// String implements fmt.Stringer for debugging.
func (ch Chunk) String() string {
	return fmt.Sprintf("chunk %d/%d [%d:%d] %s", ch.Index, ch.Total, ch.Position.Start, ch.Position.End, ch.Metadata.SemanticType)
}
