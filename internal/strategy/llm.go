package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/extractd/internal/fields"
	"github.com/fyrsmithlabs/extractd/internal/llm"
)

const llmSystemPrompt = `You are a contract analysis assistant. Extract the requested fields from the contract text.

Return a JSON object mapping each field name to {"value": "<extracted value>", "confidence": <0.0-1.0>}.
Omit fields you cannot find. Do not invent values. Keep values verbatim from the text where possible.`

// LLMStrategy delegates full-document extraction to the language model.
type LLMStrategy struct {
	client llm.Client
	logger *zap.Logger
}

// NewLLMStrategy creates the LLM strategy.
func NewLLMStrategy(client llm.Client, logger *zap.Logger) *LLMStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMStrategy{client: client, logger: logger}
}

func (l *LLMStrategy) ID() string { return IDLLM }

func (l *LLMStrategy) Available() bool {
	return l.client != nil && l.client.Available()
}

func (l *LLMStrategy) Cost() CostProfile {
	return CostProfile{
		AverageLatency:   8 * time.Second,
		AccuracyEstimate: 0.85,
		MonetaryCost:     0.02,
	}
}

// Parse sends the whole document plus the field schema to the model.
func (l *LLMStrategy) Parse(ctx context.Context, input Input, opts Options) (*Result, error) {
	started := time.Now()
	defs := targetDefs(input, opts)
	if len(defs) == 0 {
		return finish(&Result{StrategyID: IDLLM, Fields: make(fields.Set)}, defs, started), nil
	}
	if !l.Available() {
		return nil, fmt.Errorf("llm strategy unavailable")
	}

	ctx, cancel := runCtx(ctx, opts)
	defer cancel()

	resp, err := l.client.Invoke(ctx, llm.Request{
		System:      llmSystemPrompt,
		Content:     buildFieldPrompt(defs, input.TypeHint, input.Text),
		Format:      "json",
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llm invoke failed: %w", err)
	}

	set, warnings := parseFieldResponse(resp.Content, defs)
	res := &Result{
		StrategyID: IDLLM,
		Fields:     set,
		Warnings:   warnings,
		TokensUsed: resp.TokensUsed,
	}

	l.logger.Debug("llm extraction done",
		zap.Int("fields_found", len(set)),
		zap.Int("tokens_used", resp.TokensUsed),
	)

	return finish(res, defs, started), nil
}

// buildFieldPrompt renders the field schema and document for the model.
func buildFieldPrompt(defs []fields.Def, typeHint, text string) string {
	var b strings.Builder
	if typeHint != "" {
		fmt.Fprintf(&b, "Contract type: %s\n\n", typeHint)
	}
	b.WriteString("Fields to extract:\n")
	for _, d := range defs {
		fmt.Fprintf(&b, "- %s (%s", d.Name, d.Kind)
		if d.Required {
			b.WriteString(", required")
		}
		b.WriteString(")\n")
	}
	b.WriteString("\nContract text:\n")
	b.WriteString(text)
	return b.String()
}

// llmFieldValue tolerates both {"value":...,"confidence":...} objects and
// bare string values in model output.
type llmFieldValue struct {
	Value      string
	Confidence float64
}

func (v *llmFieldValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v.Value = s
		v.Confidence = 0.7 // model gave no self-assessment
		return nil
	}
	var obj struct {
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	v.Value = obj.Value
	v.Confidence = obj.Confidence
	return nil
}

// parseFieldResponse converts model JSON output into a field set,
// collecting warnings for unknown or malformed fields.
func parseFieldResponse(content string, defs []fields.Def) (fields.Set, []string) {
	set := make(fields.Set)
	var warnings []string

	raw := llm.ExtractJSON(content)
	var parsed map[string]llmFieldValue
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return set, []string{fmt.Sprintf("malformed model output: %v", err)}
	}

	known := fields.ByName(defs)
	for name, v := range parsed {
		if _, ok := known[name]; !ok {
			warnings = append(warnings, fmt.Sprintf("model returned unknown field %q", name))
			continue
		}
		if strings.TrimSpace(v.Value) == "" {
			continue
		}
		conf := v.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.7
		}
		set[name] = fields.Value{Value: strings.TrimSpace(v.Value), Confidence: conf}
	}

	return set, warnings
}

var _ Strategy = (*LLMStrategy)(nil)
