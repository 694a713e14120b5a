package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/extractd/internal/fields"
)

func testDefs() []fields.Def {
	return []fields.Def{
		{Name: "contract_title", Group: fields.TypeBasicInfo, Kind: fields.KindText, Weight: 2, Required: true},
		{Name: "contract_number", Group: fields.TypeBasicInfo, Kind: fields.KindText, Weight: 1},
		{Name: "party_a", Group: fields.TypeParties, Kind: fields.KindText, Weight: 2, Required: true},
		{Name: "total_amount", Group: fields.TypeFinancial, Kind: fields.KindMoney, Weight: 3, Required: true},
	}
}

func TestCalculate_Empty(t *testing.T) {
	score := Calculate(fields.Set{}, testDefs())

	assert.Equal(t, 0.0, score.Score)
	assert.Equal(t, 0.0, score.Total)
	assert.Equal(t, 8.0, score.MaxScore)
}

func TestCalculate_Full(t *testing.T) {
	set := fields.Set{
		"contract_title":  {Value: "Service Agreement", Confidence: 0.9},
		"contract_number": {Value: "SA-001", Confidence: 0.8},
		"party_a":         {Value: "Acme Corp", Confidence: 0.9},
		"total_amount":    {Value: "$100,000", Confidence: 0.85},
	}
	score := Calculate(set, testDefs())

	assert.Equal(t, 100.0, score.Score)
	assert.Equal(t, 8.0, score.Total)
}

func TestCalculate_Weighted(t *testing.T) {
	// Only the 3-weight field present out of 8 total weight.
	set := fields.Set{
		"total_amount": {Value: "$100,000", Confidence: 0.85},
	}
	score := Calculate(set, testDefs())

	assert.InDelta(t, 37.5, score.Score, 0.001)
}

func TestCalculate_EmptyValueNotCounted(t *testing.T) {
	set := fields.Set{
		"contract_title": {Value: "   ", Confidence: 0.9},
		"party_a":        {Value: "Acme Corp", Confidence: 0.9},
	}
	score := Calculate(set, testDefs())

	assert.Equal(t, 2.0, score.Total)
}

func TestCalculate_GroupBreakdown(t *testing.T) {
	set := fields.Set{
		"contract_title": {Value: "Service Agreement", Confidence: 0.9},
	}
	score := Calculate(set, testDefs())

	require.Len(t, score.Groups, 3)

	byGroup := make(map[fields.InformationType]GroupBreakdown)
	for _, g := range score.Groups {
		byGroup[g.Group] = g
	}

	basic := byGroup[fields.TypeBasicInfo]
	assert.Equal(t, 2.0, basic.Score)
	assert.Equal(t, 3.0, basic.MaxScore)
	assert.InDelta(t, 66.666, basic.Percent, 0.01)

	assert.Equal(t, 0.0, byGroup[fields.TypeParties].Percent)
}

func TestCalculate_NoDefs(t *testing.T) {
	score := Calculate(fields.Set{"x": {Value: "y"}}, nil)
	assert.Equal(t, 0.0, score.Score)
}

func TestMissingFields(t *testing.T) {
	set := fields.Set{
		"contract_title": {Value: "Service Agreement", Confidence: 0.9},
		"party_a":        {Value: ""},
	}
	missing := MissingFields(set, testDefs())

	// party_a is present but empty; total_amount is absent. Both are
	// required, contract_number is not.
	assert.ElementsMatch(t, []string{"party_a", "total_amount"}, missing)
}

func TestMissingFields_NoneMissing(t *testing.T) {
	set := fields.Set{
		"contract_title": {Value: "t"},
		"party_a":        {Value: "a"},
		"total_amount":   {Value: "$1"},
	}
	assert.Empty(t, MissingFields(set, testDefs()))
}
