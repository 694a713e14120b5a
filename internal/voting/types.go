// Package voting runs several extraction strategies over the same input,
// aligns their per-field outputs, scores agreement, and resolves
// disagreements. Unresolved conflicts are data, not errors.
package voting

import (
	"time"

	"github.com/fyrsmithlabs/extractd/internal/fields"
	"github.com/fyrsmithlabs/extractd/internal/strategy"
)

// Resolution methods recorded on resolved conflicts.
const (
	MethodConfidence = "confidence"
	MethodMajority   = "majority"
	MethodPriority   = "priority"
	MethodManual     = "manual"
)

// Candidate is one strategy's proposal for a field.
type Candidate struct {
	StrategyID string  `json:"strategy_id"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Resolution records how a conflict was settled.
type Resolution struct {
	Value      string    `json:"value"`
	Method     string    `json:"method"`
	ResolvedBy string    `json:"resolved_by,omitempty"` // user identity for manual resolutions
	ResolvedAt time.Time `json:"resolved_at"`
}

// ConflictRecord is a field on which two or more strategies disagreed.
// It is never silently overwritten; only an explicit resolution mutates it.
type ConflictRecord struct {
	FieldName       string      `json:"field_name"`
	Candidates      []Candidate `json:"candidates"`
	NeedsResolution bool        `json:"needs_resolution"`
	Resolution      *Resolution `json:"resolution,omitempty"`
}

// MultiResult is the outcome of a multi-strategy run.
type MultiResult struct {
	// Merged holds agreed and resolved field values.
	Merged fields.Set `json:"merged"`

	// Results holds each strategy's raw output, keyed by strategy ID.
	Results map[string]*strategy.Result `json:"results"`

	// Errors holds per-strategy failures; a failed strategy simply
	// contributes no candidates.
	Errors map[string]string `json:"errors,omitempty"`

	Conflicts []ConflictRecord `json:"conflicts,omitempty"`

	// AgreementRatio is agreed fields over all fields with >=2 candidates.
	AgreementRatio float64       `json:"agreement_ratio"`
	TokensUsed     int           `json:"tokens_used"`
	Duration       time.Duration `json:"duration"`
}

// Unresolved returns the conflicts still needing resolution.
func (m *MultiResult) Unresolved() []ConflictRecord {
	var out []ConflictRecord
	for _, c := range m.Conflicts {
		if c.NeedsResolution {
			out = append(out, c)
		}
	}
	return out
}

// Config tunes agreement detection and automatic resolution.
type Config struct {
	// ConfidenceEpsilon: confidences closer than this are treated as
	// equal during resolution.
	ConfidenceEpsilon float64 `json:"confidence_epsilon"`

	// NumericTolerance is the relative tolerance for numeric equality.
	NumericTolerance float64 `json:"numeric_tolerance"`

	// DateToleranceDays treats dates within this many days as equal.
	DateToleranceDays int `json:"date_tolerance_days"`

	// PriorityOrder breaks ties after majority voting. Earlier wins.
	PriorityOrder []string `json:"priority_order"`

	// AutoResolve applies the automatic resolution chain to conflicts.
	// Ties that survive the chain stay unresolved; they are never guessed.
	AutoResolve bool `json:"auto_resolve"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceEpsilon: 0.05,
		NumericTolerance:  0.001,
		DateToleranceDays: 0,
		PriorityOrder:     strategy.DefaultPriority(),
		AutoResolve:       true,
	}
}

// FieldDifference is one per-field delta from a session comparison.
type FieldDifference struct {
	FieldName string `json:"field_name"`
	ValueA    string `json:"value_a"`
	ValueB    string `json:"value_b"`
	Equal     bool   `json:"equal"`
}

// Comparison is the outcome of comparing two completed extractions.
type Comparison struct {
	Similarity        float64           `json:"similarity"`
	FieldDifferences  []FieldDifference `json:"field_differences"`
	AgreementCount    int               `json:"agreement_count"`
	DisagreementCount int               `json:"disagreement_count"`
}
