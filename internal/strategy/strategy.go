// Package strategy provides the pluggable extraction strategy engine.
// Each strategy takes the same input and produces the same canonical
// result shape; callers pick one explicitly or let the selector choose
// the first available strategy in priority order.
package strategy

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/extractd/internal/chunker"
	"github.com/fyrsmithlabs/extractd/internal/docconv"
	"github.com/fyrsmithlabs/extractd/internal/fields"
)

// Strategy identifiers. The set is closed; the selector only ever
// dispatches to these.
const (
	IDRule      = "rule"
	IDLLM       = "llm"
	IDRAG       = "rag"
	IDStructure = "structure"
	IDMulti     = "multi"
)

// DefaultPriority is the selection order when no strategy is forced.
func DefaultPriority() []string {
	return []string{IDMulti, IDLLM, IDRAG, IDStructure, IDRule}
}

// Input is the uniform strategy input: converted text, optional chunks
// and tables, and the field schema to extract.
type Input struct {
	Text     string
	Chunks   []chunker.Chunk
	Tables   []docconv.Table
	Fields   []fields.Def
	TypeHint string
}

// Options tune a single strategy run.
type Options struct {
	// TargetFields restricts extraction to the named fields. Empty means
	// all fields in Input.Fields.
	TargetFields []string

	// Timeout bounds the strategy call. Zero means the caller's context
	// deadline applies.
	Timeout time.Duration

	Temperature float64
	MaxTokens   int
}

// Result is the canonical per-strategy output.
type Result struct {
	StrategyID   string     `json:"strategy_id"`
	Fields       fields.Set `json:"fields"`
	Completeness float64    `json:"completeness"` // 0..1 over requested fields
	Warnings     []string   `json:"warnings,omitempty"`
	TokensUsed   int        `json:"tokens_used"`
	Duration     time.Duration
	Timestamp    time.Time `json:"timestamp"`
}

// CostProfile advertises a strategy's expected cost characteristics.
type CostProfile struct {
	AverageLatency   time.Duration `json:"average_latency"`
	AccuracyEstimate float64       `json:"accuracy_estimate"` // 0..1
	MonetaryCost     float64       `json:"monetary_cost"`     // dollars per call, approximate
}

// Strategy is one interchangeable extraction backend.
type Strategy interface {
	// ID returns the strategy identifier.
	ID() string

	// Parse runs the strategy end-to-end over the input.
	Parse(ctx context.Context, input Input, opts Options) (*Result, error)

	// Available reports whether the strategy can run right now. Must be
	// side-effect free and fast enough to call before every dispatch.
	Available() bool

	// Cost returns the strategy's cost profile.
	Cost() CostProfile
}

// targetDefs resolves the effective field schema for a run.
func targetDefs(input Input, opts Options) []fields.Def {
	if len(opts.TargetFields) == 0 {
		return input.Fields
	}
	want := make(map[string]bool, len(opts.TargetFields))
	for _, name := range opts.TargetFields {
		want[name] = true
	}
	var out []fields.Def
	for _, d := range input.Fields {
		if want[d.Name] {
			out = append(out, d)
		}
	}
	return out
}

// completeness is the fraction of requested fields present and non-empty.
func completeness(set fields.Set, defs []fields.Def) float64 {
	if len(defs) == 0 {
		return 0
	}
	present := 0
	for _, d := range defs {
		if set.Present(d.Name) {
			present++
		}
	}
	return float64(present) / float64(len(defs))
}

// runCtx applies the per-call timeout when one is configured.
func runCtx(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	if opts.Timeout > 0 {
		return context.WithTimeout(ctx, opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// finish stamps shared result bookkeeping.
func finish(res *Result, defs []fields.Def, started time.Time) *Result {
	res.Completeness = completeness(res.Fields, defs)
	res.Duration = time.Since(started)
	res.Timestamp = time.Now()
	return res
}
