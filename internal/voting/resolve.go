package voting

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/extractd/internal/fields"
)

// resolveAuto applies the automatic resolution chain to a conflict:
// confidence-weighted pick, then majority vote, then configured priority
// order. A tie that survives all three stays unresolved.
func resolveAuto(c *ConflictRecord, kind fields.Kind, cfg Config) {
	// (a) confidence: a meaningfully more confident candidate wins.
	best, second := topTwoConfidence(c.Candidates)
	if best.Confidence-second.Confidence > cfg.ConfidenceEpsilon {
		c.Resolution = &Resolution{
			Value:      best.Value,
			Method:     MethodConfidence,
			ResolvedAt: time.Now(),
		}
		c.NeedsResolution = false
		return
	}

	// (b) majority among (near-)equal-confidence candidates.
	if winner, ok := majority(c.Candidates, kind, cfg); ok {
		c.Resolution = &Resolution{
			Value:      winner.Value,
			Method:     MethodMajority,
			ResolvedAt: time.Now(),
		}
		c.NeedsResolution = false
		return
	}

	// (c) earliest strategy in the configured priority order.
	for _, id := range cfg.PriorityOrder {
		for _, cand := range c.Candidates {
			if cand.StrategyID == id {
				c.Resolution = &Resolution{
					Value:      cand.Value,
					Method:     MethodPriority,
					ResolvedAt: time.Now(),
				}
				c.NeedsResolution = false
				return
			}
		}
	}

	// Still tied: left for manual resolution, never guessed.
}

// topTwoConfidence returns the two highest-confidence candidates.
func topTwoConfidence(cands []Candidate) (best, second Candidate) {
	best = cands[0]
	second = Candidate{Confidence: -1}
	for _, c := range cands[1:] {
		switch {
		case c.Confidence > best.Confidence:
			second = best
			best = c
		case c.Confidence > second.Confidence:
			second = c
		}
	}
	return best, second
}

// majority groups candidates by normalized value and returns the highest
// confidence member of a strict-majority group.
func majority(cands []Candidate, kind fields.Kind, cfg Config) (Candidate, bool) {
	groups := make(map[string][]Candidate)
	for _, c := range cands {
		key := cfg.groupKey(kind, c.Value)
		groups[key] = append(groups[key], c)
	}

	bestCount := 0
	tied := false
	var winner []Candidate
	for _, g := range groups {
		switch {
		case len(g) > bestCount:
			bestCount = len(g)
			winner = g
			tied = false
		case len(g) == bestCount:
			tied = true
		}
	}
	if tied || bestCount == 0 {
		return Candidate{}, false
	}
	return highestConfidence(winner), true
}

// ResolveManually applies an explicit per-field choice to the result's
// conflicts. choices maps field name to the chosen value; resolvedBy
// identifies who resolved it.
func ResolveManually(res *MultiResult, choices map[string]string, resolvedBy string) error {
	for name, value := range choices {
		found := false
		for i := range res.Conflicts {
			c := &res.Conflicts[i]
			if c.FieldName != name {
				continue
			}
			found = true
			c.Resolution = &Resolution{
				Value:      value,
				Method:     MethodManual,
				ResolvedBy: resolvedBy,
				ResolvedAt: time.Now(),
			}
			c.NeedsResolution = false
			res.Merged[name] = fields.Value{Value: value, Confidence: 1.0}
		}
		if !found {
			return fmt.Errorf("no conflict recorded for field %q", name)
		}
	}
	return nil
}

// ReResolve re-runs automatic resolution over the still-unresolved
// conflicts of an existing result, using the given config.
func ReResolve(res *MultiResult, defs []fields.Def, cfg Config) {
	kinds := fields.ByName(defs)
	for i := range res.Conflicts {
		c := &res.Conflicts[i]
		if !c.NeedsResolution {
			continue
		}
		resolveAuto(c, kinds[c.FieldName].Kind, cfg)
		if !c.NeedsResolution {
			best := highestConfidence(c.Candidates)
			res.Merged[c.FieldName] = fields.Value{
				Value:      c.Resolution.Value,
				Confidence: best.Confidence,
			}
		}
	}
}
