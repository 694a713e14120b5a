package voting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/extractd/internal/fields"
)

func TestCompareFieldSets_Identical(t *testing.T) {
	a := fields.Set{
		"party_a":      {Value: "Acme Corp", Confidence: 0.9},
		"total_amount": {Value: "100,000", Confidence: 0.8},
	}
	b := fields.Set{
		"party_a":      {Value: "acme corp", Confidence: 0.7},
		"total_amount": {Value: "100000", Confidence: 0.9},
	}

	cmp := CompareFieldSets(a, b, testDefs(), DefaultConfig())

	assert.Equal(t, 1.0, cmp.Similarity)
	assert.Equal(t, 2, cmp.AgreementCount)
	assert.Zero(t, cmp.DisagreementCount)
	assert.Empty(t, cmp.FieldDifferences)
}

func TestCompareFieldSets_Differences(t *testing.T) {
	a := fields.Set{
		"party_a":        {Value: "Acme Corp"},
		"total_amount":   {Value: "100000"},
		"effective_date": {Value: "2024-01-15"},
	}
	b := fields.Set{
		"party_a":      {Value: "Widget LLC"},
		"total_amount": {Value: "100000"},
	}

	cmp := CompareFieldSets(a, b, testDefs(), DefaultConfig())

	assert.Equal(t, 1, cmp.AgreementCount)
	assert.Equal(t, 2, cmp.DisagreementCount)
	assert.InDelta(t, 1.0/3.0, cmp.Similarity, 0.001)

	require.Len(t, cmp.FieldDifferences, 2)
	byName := make(map[string]FieldDifference)
	for _, d := range cmp.FieldDifferences {
		byName[d.FieldName] = d
	}

	// Conflicting values on both sides.
	d := byName["party_a"]
	assert.Equal(t, "Acme Corp", d.ValueA)
	assert.Equal(t, "Widget LLC", d.ValueB)

	// Missing on one side counts as disagreement.
	d = byName["effective_date"]
	assert.Equal(t, "2024-01-15", d.ValueA)
	assert.Empty(t, d.ValueB)
}

func TestCompareFieldSets_Empty(t *testing.T) {
	cmp := CompareFieldSets(fields.Set{}, fields.Set{}, testDefs(), DefaultConfig())
	assert.Equal(t, 1.0, cmp.Similarity)
	assert.Zero(t, cmp.AgreementCount)
}
