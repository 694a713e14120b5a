package voting

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/fyrsmithlabs/extractd/internal/fields"
)

// normalizeString folds case and strips whitespace and punctuation, so
// "100,000" and "100000" or "Acme Corp." and "acme corp" agree.
func normalizeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// parseNumber extracts a float from a possibly currency-decorated value.
func parseNumber(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// dateLayouts cover the formats contracts and models actually emit.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"January 2 2006",
	time.RFC3339,
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// valuesEqual reports field-kind aware equality under the configured
// tolerances.
func (cfg Config) valuesEqual(kind fields.Kind, a, b string) bool {
	switch kind {
	case fields.KindNumber, fields.KindMoney:
		fa, okA := parseNumber(a)
		fb, okB := parseNumber(b)
		if okA && okB {
			if fa == fb {
				return true
			}
			scale := math.Max(math.Abs(fa), math.Abs(fb))
			if scale == 0 {
				return true
			}
			return math.Abs(fa-fb)/scale <= cfg.NumericTolerance
		}
	case fields.KindDate:
		ta, okA := parseDate(a)
		tb, okB := parseDate(b)
		if okA && okB {
			diff := ta.Sub(tb)
			if diff < 0 {
				diff = -diff
			}
			return diff <= time.Duration(cfg.DateToleranceDays)*24*time.Hour
		}
	}
	return normalizeString(a) == normalizeString(b)
}

// groupKey buckets a value for majority voting. Values that compare equal
// under valuesEqual must land in the same bucket, so numbers and dates
// are canonicalized before string normalization.
func (cfg Config) groupKey(kind fields.Kind, v string) string {
	switch kind {
	case fields.KindNumber, fields.KindMoney:
		if f, ok := parseNumber(v); ok {
			return strconv.FormatFloat(f, 'g', 12, 64)
		}
	case fields.KindDate:
		if t, ok := parseDate(v); ok {
			return t.Format("2006-01-02")
		}
	}
	return normalizeString(v)
}
