// Package doctype classifies contract documents by keyword scoring over
// the document head. The type hint narrows which task groups downstream
// extraction runs.
package doctype

import (
	"sort"
	"strings"
)

// Known document types.
const (
	TypePurchase     = "purchase"
	TypeService      = "service"
	TypeLease        = "lease"
	TypeEmployment   = "employment"
	TypeNDA          = "nda"
	TypeLoan         = "loan"
	TypeConstruction = "construction"
	TypeOther        = "other"
)

// Detection is a classification outcome with supporting evidence.
type Detection struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// headBytes is how much of the document participates in detection. Titles
// and recitals carry nearly all of the signal.
const headBytes = 4000

type signal struct {
	keyword string
	weight  float64
}

var typeSignals = map[string][]signal{
	TypePurchase: {
		{"purchase agreement", 3}, {"purchase order", 3}, {"sale of goods", 2},
		{"buyer", 1}, {"seller", 1}, {"goods", 0.5}, {"delivery", 0.5},
	},
	TypeService: {
		{"service agreement", 3}, {"services agreement", 3}, {"statement of work", 2},
		{"scope of services", 2}, {"service provider", 1.5}, {"deliverables", 1},
	},
	TypeLease: {
		{"lease agreement", 3}, {"lease", 1.5}, {"landlord", 2}, {"tenant", 2},
		{"premises", 1.5}, {"rent", 1},
	},
	TypeEmployment: {
		{"employment agreement", 3}, {"employment contract", 3}, {"employer", 2},
		{"employee", 2}, {"salary", 1.5}, {"position", 0.5}, {"probation", 1},
	},
	TypeNDA: {
		{"non-disclosure agreement", 3}, {"nondisclosure agreement", 3},
		{"confidentiality agreement", 3}, {"confidential information", 2},
		{"disclosing party", 2}, {"receiving party", 2},
	},
	TypeLoan: {
		{"loan agreement", 3}, {"promissory note", 3}, {"lender", 2},
		{"borrower", 2}, {"principal amount", 2}, {"interest rate", 1.5},
	},
	TypeConstruction: {
		{"construction contract", 3}, {"construction agreement", 3},
		{"contractor", 1.5}, {"subcontractor", 1.5}, {"site", 0.5},
		{"completion date", 1}, {"change order", 2},
	},
}

var fileNameHints = map[string]string{
	"nda":          TypeNDA,
	"lease":        TypeLease,
	"employment":   TypeEmployment,
	"loan":         TypeLoan,
	"purchase":     TypePurchase,
	"service":      TypeService,
	"construction": TypeConstruction,
}

// Detect classifies the document text, optionally biased by a file name
// hint. It never fails: an unclassifiable document is TypeOther with low
// confidence.
func Detect(text, fileName string) Detection {
	head := strings.ToLower(text)
	if len(head) > headBytes {
		head = head[:headBytes]
	}

	scores := make(map[string]float64, len(typeSignals))
	hits := make(map[string][]string, len(typeSignals))
	for t, sigs := range typeSignals {
		for _, s := range sigs {
			if n := strings.Count(head, s.keyword); n > 0 {
				// Repeats add diminishing evidence.
				scores[t] += s.weight + float64(n-1)*s.weight*0.25
				hits[t] = append(hits[t], s.keyword)
			}
		}
	}

	if fileName != "" {
		lower := strings.ToLower(fileName)
		for hint, t := range fileNameHints {
			if strings.Contains(lower, hint) {
				scores[t] += 2
				hits[t] = append(hits[t], "file name: "+hint)
			}
		}
	}

	best, bestScore, secondScore := TypeOther, 0.0, 0.0
	for _, t := range orderedTypes() {
		s := scores[t]
		switch {
		case s > bestScore:
			secondScore = bestScore
			best, bestScore = t, s
		case s > secondScore:
			secondScore = s
		}
	}

	if bestScore < 2 {
		return Detection{
			Type:       TypeOther,
			Confidence: 0.3,
			Reasoning:  "no document type keywords matched",
		}
	}

	// Confidence grows with absolute score and with the margin over the
	// runner-up, capped well below certainty.
	confidence := 0.5 + math1(bestScore/12)*0.3 + math1((bestScore-secondScore)/bestScore)*0.15
	matched := hits[best]
	sort.Strings(matched)
	return Detection{
		Type:       best,
		Confidence: confidence,
		Reasoning:  "matched: " + strings.Join(matched, ", "),
	}
}

// orderedTypes keeps detection deterministic when scores tie.
func orderedTypes() []string {
	return []string{
		TypeNDA, TypeEmployment, TypeLoan, TypeLease,
		TypeConstruction, TypePurchase, TypeService,
	}
}

func math1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
