package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/extractd/internal/docconv"
	"github.com/fyrsmithlabs/extractd/internal/fields"
	"github.com/fyrsmithlabs/extractd/internal/llm"
)

// StructureStrategy augments model input with the structure-aware
// converter's output: extracted tables carry payment schedules and
// milestone lists that flat text extraction tends to mangle.
type StructureStrategy struct {
	client    llm.Client
	converter docconv.Converter
	logger    *zap.Logger
}

// NewStructureStrategy creates the structure-aware strategy.
func NewStructureStrategy(client llm.Client, converter docconv.Converter, logger *zap.Logger) *StructureStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StructureStrategy{client: client, converter: converter, logger: logger}
}

func (s *StructureStrategy) ID() string { return IDStructure }

func (s *StructureStrategy) Available() bool {
	return s.client != nil && s.client.Available() && s.converter != nil
}

func (s *StructureStrategy) Cost() CostProfile {
	return CostProfile{
		AverageLatency:   9 * time.Second,
		AccuracyEstimate: 0.82,
		MonetaryCost:     0.02,
	}
}

// Parse converts the document, renders its tables as additional context,
// and delegates to the model.
func (s *StructureStrategy) Parse(ctx context.Context, input Input, opts Options) (*Result, error) {
	started := time.Now()
	defs := targetDefs(input, opts)
	if len(defs) == 0 {
		return finish(&Result{StrategyID: IDStructure, Fields: make(fields.Set)}, defs, started), nil
	}
	if !s.Available() {
		return nil, fmt.Errorf("structure strategy unavailable")
	}

	ctx, cancel := runCtx(ctx, opts)
	defer cancel()

	tables := input.Tables
	var warnings []string
	if len(tables) == 0 {
		doc, err := s.converter.Convert(ctx, input.Text)
		if err != nil {
			return nil, fmt.Errorf("document conversion failed: %w", err)
		}
		tables = doc.Tables
	}
	if len(tables) == 0 {
		warnings = append(warnings, "no tables found in document structure")
	}

	content := buildFieldPrompt(defs, input.TypeHint, input.Text)
	if len(tables) > 0 {
		content += "\n\nExtracted tables:\n" + renderTables(tables)
	}

	resp, err := s.client.Invoke(ctx, llm.Request{
		System:      llmSystemPrompt,
		Content:     content,
		Format:      "json",
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("structure invoke failed: %w", err)
	}

	set, parseWarnings := parseFieldResponse(resp.Content, defs)
	res := &Result{
		StrategyID: IDStructure,
		Fields:     set,
		Warnings:   append(warnings, parseWarnings...),
		TokensUsed: resp.TokensUsed,
	}

	s.logger.Debug("structure extraction done",
		zap.Int("tables", len(tables)),
		zap.Int("fields_found", len(set)),
	)

	return finish(res, defs, started), nil
}

// renderTables flattens extracted tables into a compact textual form.
func renderTables(tables []docconv.Table) string {
	var b strings.Builder
	for i, t := range tables {
		if t.Title != "" {
			fmt.Fprintf(&b, "Table %d (%s):\n", i+1, t.Title)
		} else {
			fmt.Fprintf(&b, "Table %d:\n", i+1)
		}
		b.WriteString(strings.Join(t.Headers, " | "))
		b.WriteByte('\n')
		for _, row := range t.Rows {
			b.WriteString(strings.Join(row, " | "))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

var _ Strategy = (*StructureStrategy)(nil)
