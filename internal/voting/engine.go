package voting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/extractd/internal/fields"
	"github.com/fyrsmithlabs/extractd/internal/strategy"
)

// Judge is an optional LLM-as-judge capability for ambiguous string
// equality (semantically equivalent but textually different values).
// The engine is fully functional without one.
type Judge interface {
	// Equivalent reports whether two free-text field values mean the
	// same thing.
	Equivalent(ctx context.Context, fieldName, a, b string) (bool, error)
}

// Engine runs multi-strategy extraction with voting.
type Engine struct {
	selector *strategy.Selector
	cfg      Config
	judge    Judge
	logger   *zap.Logger
}

// NewEngine creates a voting engine. judge may be nil.
func NewEngine(selector *strategy.Selector, cfg Config, judge Judge, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConfidenceEpsilon == 0 {
		cfg.ConfidenceEpsilon = DefaultConfig().ConfidenceEpsilon
	}
	if cfg.NumericTolerance == 0 {
		cfg.NumericTolerance = DefaultConfig().NumericTolerance
	}
	if len(cfg.PriorityOrder) == 0 {
		cfg.PriorityOrder = DefaultConfig().PriorityOrder
	}
	return &Engine{selector: selector, cfg: cfg, judge: judge, logger: logger}
}

// Parse runs every requested strategy concurrently against the same input
// and votes on the per-field outputs. A strategy failure is recorded, not
// fatal to the batch.
func (e *Engine) Parse(ctx context.Context, input strategy.Input, strategyIDs []string, opts strategy.Options, override *Config) (*MultiResult, error) {
	started := time.Now()
	cfg := e.cfg
	if override != nil {
		cfg = *override
		if len(cfg.PriorityOrder) == 0 {
			cfg.PriorityOrder = e.cfg.PriorityOrder
		}
	}

	if len(strategyIDs) == 0 {
		strategyIDs = e.selector.Available()
	}
	if len(strategyIDs) == 0 {
		return nil, strategy.ErrNoStrategy
	}

	res := &MultiResult{
		Merged:  make(fields.Set),
		Results: make(map[string]*strategy.Result, len(strategyIDs)),
		Errors:  make(map[string]string),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range strategyIDs {
		st, err := e.selector.Get(id)
		if err != nil {
			res.Errors[id] = err.Error()
			continue
		}
		if !st.Available() {
			res.Errors[id] = fmt.Sprintf("strategy %s is not available", id)
			continue
		}

		wg.Add(1)
		go func(st strategy.Strategy) {
			defer wg.Done()
			out, err := st.Parse(ctx, input, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Errors[st.ID()] = err.Error()
				e.logger.Warn("strategy failed in multi run",
					zap.String("strategy", st.ID()),
					zap.Error(err),
				)
				return
			}
			res.Results[st.ID()] = out
			res.TokensUsed += out.TokensUsed
		}(st)
	}

	wg.Wait()

	if len(res.Results) == 0 {
		return nil, fmt.Errorf("all strategies failed: %v", res.Errors)
	}

	e.vote(ctx, res, input.Fields, cfg)
	res.Duration = time.Since(started)

	e.logger.Info("multi-strategy parse done",
		zap.Int("strategies_succeeded", len(res.Results)),
		zap.Int("strategies_failed", len(res.Errors)),
		zap.Int("conflicts", len(res.Conflicts)),
		zap.Float64("agreement_ratio", res.AgreementRatio),
	)

	return res, nil
}

// vote aligns per-field candidates across strategy results, merges
// agreements, and records conflicts.
func (e *Engine) vote(ctx context.Context, res *MultiResult, defs []fields.Def, cfg Config) {
	kinds := fields.ByName(defs)

	// Collect candidates per field, in deterministic strategy order.
	ids := make([]string, 0, len(res.Results))
	for id := range res.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	byField := make(map[string][]Candidate)
	for _, id := range ids {
		for name, v := range res.Results[id].Fields {
			byField[name] = append(byField[name], Candidate{
				StrategyID: id,
				Value:      v.Value,
				Confidence: v.Confidence,
			})
		}
	}

	names := make([]string, 0, len(byField))
	for name := range byField {
		names = append(names, name)
	}
	sort.Strings(names)

	voted, agreed := 0, 0
	for _, name := range names {
		cands := byField[name]
		kind := kinds[name].Kind

		if len(cands) == 1 {
			res.Merged[name] = fields.Value{Value: cands[0].Value, Confidence: cands[0].Confidence}
			continue
		}

		voted++
		if e.allAgree(ctx, name, kind, cands, cfg) {
			agreed++
			best := highestConfidence(cands)
			res.Merged[name] = fields.Value{Value: best.Value, Confidence: best.Confidence}
			continue
		}

		conflict := ConflictRecord{
			FieldName:       name,
			Candidates:      cands,
			NeedsResolution: true,
		}
		if cfg.AutoResolve {
			resolveAuto(&conflict, kind, cfg)
			if !conflict.NeedsResolution {
				res.Merged[name] = fields.Value{
					Value:      conflict.Resolution.Value,
					Confidence: confidenceOf(cands, conflict.Resolution.Value),
				}
			}
		}
		res.Conflicts = append(res.Conflicts, conflict)
	}

	if voted > 0 {
		res.AgreementRatio = float64(agreed) / float64(voted)
	} else {
		res.AgreementRatio = 1
	}
}

// allAgree reports whether every candidate matches the first under
// normalization, escalating text fields to the judge when configured.
func (e *Engine) allAgree(ctx context.Context, name string, kind fields.Kind, cands []Candidate, cfg Config) bool {
	for i := 1; i < len(cands); i++ {
		if cfg.valuesEqual(kind, cands[0].Value, cands[i].Value) {
			continue
		}
		if kind == fields.KindText && e.judge != nil {
			if ok, err := e.judge.Equivalent(ctx, name, cands[0].Value, cands[i].Value); err == nil && ok {
				continue
			}
		}
		return false
	}
	return true
}

func highestConfidence(cands []Candidate) Candidate {
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best
}

// confidenceOf returns the best confidence among the candidates that carry
// the resolved value, so a losing candidate's confidence never rides along.
func confidenceOf(cands []Candidate, value string) float64 {
	best := 0.0
	for _, c := range cands {
		if c.Value == value && c.Confidence > best {
			best = c.Confidence
		}
	}
	return best
}
