// Package scoring computes weighted completeness scores over extracted
// field sets, with per-group breakdowns for display.
package scoring

import (
	"github.com/fyrsmithlabs/extractd/internal/fields"
)

// GroupBreakdown is the score contribution of one information type.
type GroupBreakdown struct {
	Group    fields.InformationType `json:"group"`
	Score    float64                `json:"score"`     // weighted sum of present fields
	MaxScore float64                `json:"max_score"` // weighted sum of defined fields
	Percent  float64                `json:"percent"`   // 0..100
}

// Score is the completeness result.
type Score struct {
	// Score is the overall percentage, 0..100.
	Score    float64          `json:"score"`
	Total    float64          `json:"total"`     // weighted sum of present fields
	MaxScore float64          `json:"max_score"` // weighted sum of all defined fields
	Groups   []GroupBreakdown `json:"groups"`
}

// Calculate scores the field set against the definitions: the weighted
// sum of present, non-empty fields over the weighted sum of all defined
// fields, as a percentage.
func Calculate(set fields.Set, defs []fields.Def) Score {
	byGroup := make(map[fields.InformationType]*GroupBreakdown)
	var order []fields.InformationType

	var total, max float64
	for _, d := range defs {
		g, ok := byGroup[d.Group]
		if !ok {
			g = &GroupBreakdown{Group: d.Group}
			byGroup[d.Group] = g
			order = append(order, d.Group)
		}

		g.MaxScore += d.Weight
		max += d.Weight
		if set.Present(d.Name) {
			g.Score += d.Weight
			total += d.Weight
		}
	}

	score := Score{Total: total, MaxScore: max}
	if max > 0 {
		score.Score = total / max * 100
	}
	for _, t := range order {
		g := byGroup[t]
		if g.MaxScore > 0 {
			g.Percent = g.Score / g.MaxScore * 100
		}
		score.Groups = append(score.Groups, *g)
	}
	return score
}

// MissingFields lists required fields absent or empty in the set. Missing
// required fields are always reported explicitly, never silently zeroed.
func MissingFields(set fields.Set, defs []fields.Def) []string {
	var missing []string
	for _, d := range defs {
		if d.Required && !set.Present(d.Name) {
			missing = append(missing, d.Name)
		}
	}
	return missing
}
