package voting

import (
	"sort"

	"github.com/fyrsmithlabs/extractd/internal/fields"
)

// CompareFieldSets recomputes the agreement logic between two completed
// extractions' field sets, for audit and debugging. Fields present in
// either set are compared; a field missing from one side counts as a
// disagreement.
func CompareFieldSets(a, b fields.Set, defs []fields.Def, cfg Config) *Comparison {
	kinds := fields.ByName(defs)

	names := make(map[string]bool, len(a)+len(b))
	for name := range a {
		names[name] = true
	}
	for name := range b {
		names[name] = true
	}

	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	cmp := &Comparison{}
	for _, name := range ordered {
		va, okA := a[name]
		vb, okB := b[name]

		diff := FieldDifference{FieldName: name}
		switch {
		case okA && okB:
			diff.ValueA = va.Value
			diff.ValueB = vb.Value
			diff.Equal = cfg.valuesEqual(kinds[name].Kind, va.Value, vb.Value)
		case okA:
			diff.ValueA = va.Value
		case okB:
			diff.ValueB = vb.Value
		}

		if diff.Equal {
			cmp.AgreementCount++
		} else {
			cmp.DisagreementCount++
			cmp.FieldDifferences = append(cmp.FieldDifferences, diff)
		}
	}

	total := cmp.AgreementCount + cmp.DisagreementCount
	if total > 0 {
		cmp.Similarity = float64(cmp.AgreementCount) / float64(total)
	} else {
		cmp.Similarity = 1
	}
	return cmp
}
