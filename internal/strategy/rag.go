package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/extractd/internal/chunker"
	"github.com/fyrsmithlabs/extractd/internal/fields"
	"github.com/fyrsmithlabs/extractd/internal/llm"
)

// RAGStrategy restricts the model input to chunks whose field-relevance
// tags intersect the requested fields, bounding token cost on long
// documents. When no chunks are supplied it chunks the text itself.
type RAGStrategy struct {
	client  llm.Client
	chunker *chunker.Chunker
	logger  *zap.Logger

	// maxContextBytes caps the assembled chunk context sent per call.
	maxContextBytes int
}

// NewRAGStrategy creates the retrieval-augmented strategy.
func NewRAGStrategy(client llm.Client, ck *chunker.Chunker, logger *zap.Logger) *RAGStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ck == nil {
		ck = chunker.New(chunker.DefaultConfig())
	}
	return &RAGStrategy{
		client:          client,
		chunker:         ck,
		logger:          logger,
		maxContextBytes: 12000,
	}
}

func (r *RAGStrategy) ID() string { return IDRAG }

func (r *RAGStrategy) Available() bool {
	return r.client != nil && r.client.Available()
}

func (r *RAGStrategy) Cost() CostProfile {
	return CostProfile{
		AverageLatency:   5 * time.Second,
		AccuracyEstimate: 0.8,
		MonetaryCost:     0.008,
	}
}

// Parse assembles a relevance-filtered context and delegates to the model.
func (r *RAGStrategy) Parse(ctx context.Context, input Input, opts Options) (*Result, error) {
	started := time.Now()
	defs := targetDefs(input, opts)
	if len(defs) == 0 {
		return finish(&Result{StrategyID: IDRAG, Fields: make(fields.Set)}, defs, started), nil
	}
	if !r.Available() {
		return nil, fmt.Errorf("rag strategy unavailable")
	}

	ctx, cancel := runCtx(ctx, opts)
	defer cancel()

	chunks := input.Chunks
	if len(chunks) == 0 {
		cr := r.chunker.Chunk(input.Text, 0)
		if !cr.Success {
			return nil, fmt.Errorf("empty input")
		}
		chunks = cr.Chunks
	}

	context, used := r.selectContext(chunks, defs)
	var warnings []string
	if used == 0 {
		// Nothing tagged relevant: fall back to the document head so the
		// call still has material to work with.
		context = input.Text
		if len(context) > r.maxContextBytes {
			context = context[:r.maxContextBytes]
		}
		warnings = append(warnings, "no relevant chunks found, used document head")
	}

	resp, err := r.client.Invoke(ctx, llm.Request{
		System:      llmSystemPrompt,
		Content:     buildFieldPrompt(defs, input.TypeHint, context),
		Format:      "json",
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("rag invoke failed: %w", err)
	}

	set, parseWarnings := parseFieldResponse(resp.Content, defs)
	res := &Result{
		StrategyID: IDRAG,
		Fields:     set,
		Warnings:   append(warnings, parseWarnings...),
		TokensUsed: resp.TokensUsed,
	}

	r.logger.Debug("rag extraction done",
		zap.Int("chunks_used", used),
		zap.Int("fields_found", len(set)),
		zap.Int("tokens_used", resp.TokensUsed),
	)

	return finish(res, defs, started), nil
}

// selectContext picks relevant chunks by priority until the byte budget is
// exhausted, then reassembles them in document order.
func (r *RAGStrategy) selectContext(chunks []chunker.Chunk, defs []fields.Def) (string, int) {
	types := make([]fields.InformationType, 0, len(defs))
	seen := make(map[fields.InformationType]bool)
	for _, d := range defs {
		if !seen[d.Group] {
			seen[d.Group] = true
			types = append(types, d.Group)
		}
	}

	var relevant []chunker.Chunk
	for _, ch := range chunks {
		if ch.RelevantTo(types) {
			relevant = append(relevant, ch)
		}
	}

	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].Metadata.Priority > relevant[j].Metadata.Priority
	})

	budget := r.maxContextBytes
	var picked []chunker.Chunk
	for _, ch := range relevant {
		if len(ch.Text) > budget {
			continue
		}
		budget -= len(ch.Text)
		picked = append(picked, ch)
	}

	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Index < picked[j].Index })

	var b strings.Builder
	for _, ch := range picked {
		b.WriteString(ch.Text)
		b.WriteString("\n\n")
	}
	return b.String(), len(picked)
}

var _ Strategy = (*RAGStrategy)(nil)
