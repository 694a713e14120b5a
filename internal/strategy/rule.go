package strategy

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/extractd/internal/fields"
)

// fieldPattern binds a field name to a capture pattern and a confidence
// for matches. Deterministic patterns are cheap but coarse, so the
// confidence ceiling stays well below the LLM strategies.
type fieldPattern struct {
	field      string
	re         *regexp.Regexp
	confidence float64
}

// defaultPatterns cover the common phrasings of the built-in contract
// field catalog. The first capture group is the extracted value.
var defaultPatterns = []fieldPattern{
	{"contract_title", regexp.MustCompile(`(?im)^#?\s*(.{4,80}?(?:agreement|contract))\s*$`), 0.6},
	{"contract_number", regexp.MustCompile(`(?i)(?:contract|agreement)\s*(?:no\.?|number|#)[:\s]*([A-Z0-9][A-Z0-9/-]{2,30})`), 0.7},
	{"party_a", regexp.MustCompile(`(?i)party\s*a[^:\n]*[:：]\s*([^\n,;(]{2,80})`), 0.65},
	{"party_b", regexp.MustCompile(`(?i)party\s*b[^:\n]*[:：]\s*([^\n,;(]{2,80})`), 0.65},
	{"total_amount", regexp.MustCompile(`(?i)(?:total\s+(?:contract\s+)?(?:amount|price|value)|sum\s+of)[^0-9$€£]{0,20}([$€£]?\s?[0-9][0-9,.]*(?:\s*(?:USD|EUR|GBP|dollars|euros))?)`), 0.6},
	{"currency", regexp.MustCompile(`(?i)\b(USD|EUR|GBP|CNY|JPY)\b`), 0.55},
	{"tax_rate", regexp.MustCompile(`(?i)(?:tax|vat)\s*(?:rate)?[^0-9]{0,10}([0-9]{1,2}(?:\.[0-9]+)?\s*%)`), 0.55},
	{"deposit_amount", regexp.MustCompile(`(?i)deposit[^0-9$€£]{0,20}([$€£]?\s?[0-9][0-9,.]*)`), 0.55},
	{"effective_date", regexp.MustCompile(`(?i)effective\s+(?:as\s+of\s+|date[:\s]+|on\s+)([A-Za-z0-9, /-]{6,30}\d)`), 0.6},
	{"expiry_date", regexp.MustCompile(`(?i)(?:expires?|valid\s+until|terminates?\s+on)[:\s]+([A-Za-z0-9, /-]{6,30}\d)`), 0.6},
	{"signing_date", regexp.MustCompile(`(?i)(?:signed|executed)\s+(?:on|as\s+of)\s+([A-Za-z0-9, /-]{6,30}\d)`), 0.6},
	{"delivery_date", regexp.MustCompile(`(?i)deliver(?:y|ed)?\s+(?:date|by|on)[:\s]+([A-Za-z0-9, /-]{6,30}\d)`), 0.55},
	{"payment_terms", regexp.MustCompile(`(?i)payment\s+terms?[:\s]+([^\n]{4,120})`), 0.55},
	{"payment_method", regexp.MustCompile(`(?i)(?:payment\s+(?:by|via|method[:\s]))\s*((?:wire\s+transfer|bank\s+transfer|check|cheque|credit\s+card|letter\s+of\s+credit)[^\n]{0,40})`), 0.55},
	{"governing_law", regexp.MustCompile(`(?i)governed\s+by\s+(?:the\s+laws?\s+of\s+)?([^\n.;]{3,60})`), 0.6},
	{"dispute_resolution", regexp.MustCompile(`(?i)(?:disputes?[^\n.]{0,40}(?:resolved|settled|submitted)\s+(?:by|to|through)\s+)([^\n.;]{3,80})`), 0.55},
}

// RuleStrategy is deterministic pattern matching: always available, fast,
// low accuracy.
type RuleStrategy struct {
	patterns []fieldPattern
	logger   *zap.Logger
}

// NewRuleStrategy creates the rule-based strategy with the built-in
// pattern set.
func NewRuleStrategy(logger *zap.Logger) *RuleStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleStrategy{patterns: defaultPatterns, logger: logger}
}

func (r *RuleStrategy) ID() string      { return IDRule }
func (r *RuleStrategy) Available() bool { return true }

func (r *RuleStrategy) Cost() CostProfile {
	return CostProfile{
		AverageLatency:   5 * time.Millisecond,
		AccuracyEstimate: 0.55,
		MonetaryCost:     0,
	}
}

// Parse scans the input text with every pattern whose field is requested.
func (r *RuleStrategy) Parse(ctx context.Context, input Input, opts Options) (*Result, error) {
	started := time.Now()
	defs := targetDefs(input, opts)

	wanted := make(map[string]bool, len(defs))
	for _, d := range defs {
		wanted[d.Name] = true
	}

	res := &Result{
		StrategyID: IDRule,
		Fields:     make(fields.Set),
	}

	for _, p := range r.patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !wanted[p.field] {
			continue
		}
		loc := p.re.FindStringSubmatchIndex(input.Text)
		if loc == nil || loc[2] < 0 {
			continue
		}
		value := strings.TrimSpace(input.Text[loc[2]:loc[3]])
		if value == "" {
			continue
		}
		res.Fields[p.field] = fields.Value{
			Value:      value,
			Confidence: p.confidence,
			Source:     fields.SourceSpan{Start: loc[2], End: loc[3]},
		}
	}

	r.logger.Debug("rule extraction done",
		zap.Int("fields_requested", len(defs)),
		zap.Int("fields_found", len(res.Fields)),
	)

	return finish(res, defs, started), nil
}

var _ Strategy = (*RuleStrategy)(nil)
