package voting

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/extractd/internal/fields"
)

func TestNormalizeString(t *testing.T) {
	assert.Equal(t, normalizeString("Acme Corp."), normalizeString("acme corp"))
	assert.Equal(t, normalizeString("100,000"), normalizeString("100000"))
	assert.NotEqual(t, normalizeString("Acme"), normalizeString("Widget"))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"100000", 100000, true},
		{"100,000", 100000, true},
		{"$100,000.50", 100000.50, true},
		{"100,000 USD", 100000, true},
		{"-42", -42, true},
		{"no digits", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if ok {
			assert.InDelta(t, tt.want, got, 0.001, tt.in)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := "2024-01-15"
	for _, in := range []string{
		"2024-01-15",
		"2024/01/15",
		"01/15/2024",
		"January 15, 2024",
		"Jan 15, 2024",
		"15 January 2024",
	} {
		got, ok := parseDate(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got.Format("2006-01-02"), in)
	}

	_, ok := parseDate("not a date")
	assert.False(t, ok)
}

func TestValuesEqual(t *testing.T) {
	cfg := DefaultConfig()

	// Money: formatting noise is ignored.
	assert.True(t, cfg.valuesEqual(fields.KindMoney, "100,000", "100000"))
	assert.True(t, cfg.valuesEqual(fields.KindMoney, "$100,000", "100000 USD"))
	assert.False(t, cfg.valuesEqual(fields.KindMoney, "100000", "101000"))

	// Numbers: relative tolerance.
	assert.True(t, cfg.valuesEqual(fields.KindNumber, "1000.0", "1000.5"))
	assert.False(t, cfg.valuesEqual(fields.KindNumber, "1000", "1002"))

	// Dates: layout-independent, zero-day tolerance by default.
	assert.True(t, cfg.valuesEqual(fields.KindDate, "January 15, 2024", "2024-01-15"))
	assert.False(t, cfg.valuesEqual(fields.KindDate, "2024-01-15", "2024-01-16"))

	// Text: case and punctuation folded.
	assert.True(t, cfg.valuesEqual(fields.KindText, "ACME Corp.", "acme corp"))
	assert.False(t, cfg.valuesEqual(fields.KindText, "Acme", "Widget"))
}

func TestValuesEqual_DateTolerance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DateToleranceDays = 1

	assert.True(t, cfg.valuesEqual(fields.KindDate, "2024-01-15", "2024-01-16"))
	assert.False(t, cfg.valuesEqual(fields.KindDate, "2024-01-15", "2024-01-18"))
}

func TestValuesEqual_UnparseableFallsBackToString(t *testing.T) {
	cfg := DefaultConfig()

	// "TBD" parses as neither number nor date; string folding applies.
	assert.True(t, cfg.valuesEqual(fields.KindMoney, "TBD", "tbd"))
	assert.True(t, cfg.valuesEqual(fields.KindDate, "upon signing", "Upon Signing"))
}

func TestGroupKey_ConsistentWithEquality(t *testing.T) {
	cfg := DefaultConfig()

	// Values that compare equal must share a majority bucket.
	assert.Equal(t,
		cfg.groupKey(fields.KindMoney, "100,000"),
		cfg.groupKey(fields.KindMoney, "$100000"))
	assert.Equal(t,
		cfg.groupKey(fields.KindDate, "January 15, 2024"),
		cfg.groupKey(fields.KindDate, "2024-01-15"))
	assert.NotEqual(t,
		cfg.groupKey(fields.KindMoney, "100000"),
		cfg.groupKey(fields.KindMoney, "200000"))
}
