package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/extractd/internal/fields"
)

// relevanceKeywords maps information types to the phrases that indicate a
// chunk is likely to contain their target fields. Matching is lowercase
// substring matching; this is a cheap prioritization signal, not a
// classifier.
var relevanceKeywords = map[fields.InformationType][]string{
	fields.TypeBasicInfo: {
		"contract no", "contract number", "agreement", "title", "hereinafter",
	},
	fields.TypeParties: {
		"party a", "party b", "between", "seller", "buyer", "lessor", "lessee",
		"contractor", "client", "representative", "on behalf of",
	},
	fields.TypeFinancial: {
		"amount", "price", "total", "$", "usd", "eur", "fee", "tax", "deposit",
		"invoice", "cost",
	},
	fields.TypeTime: {
		"effective date", "term of", "expire", "expiry", "duration", "commence",
		"terminate", "valid until", "signing date",
	},
	fields.TypeMilestones: {
		"milestone", "deliverable", "delivery", "phase", "acceptance",
		"completion", "schedule of work",
	},
	fields.TypePayment: {
		"payment", "installment", "invoice", "wire transfer", "net 30",
		"due within", "billing",
	},
	fields.TypeLegalTerms: {
		"breach", "liability", "indemn", "dispute", "arbitration", "governing law",
		"jurisdiction", "confidential", "force majeure", "warranty",
	},
}

// semanticTypes maps coarse chunk classifications to trigger phrases,
// checked in order.
var semanticTypes = []struct {
	name     string
	keywords []string
}{
	{"parties", []string{"party a", "party b", "between", "hereinafter"}},
	{"financial", []string{"amount", "price", "payment", "$", "fee"}},
	{"schedule", []string{"milestone", "delivery", "phase", "schedule"}},
	{"term", []string{"effective date", "term of", "duration", "expire"}},
	{"legal", []string{"breach", "liability", "dispute", "governing law", "confidential"}},
}

// tagChunk computes best-effort metadata for a chunk body.
func tagChunk(text string) Metadata {
	lower := strings.ToLower(text)

	md := Metadata{SemanticType: "general"}
	for _, st := range semanticTypes {
		if containsAny(lower, st.keywords) {
			md.SemanticType = st.name
			break
		}
	}

	for _, t := range fields.AllTypes() {
		hits := 0
		for _, kw := range relevanceKeywords[t] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > 0 {
			md.Relevance = append(md.Relevance, t)
			md.Priority += hits
		}
	}

	md.Title, md.ArticleNumber = titleOf(text)
	return md
}

// titleOf extracts a heading title and article number from the first line.
func titleOf(text string) (string, string) {
	line := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		line = text[:idx]
	}
	line = strings.TrimSpace(line)

	var article string
	if m := articleNumRe.FindStringSubmatch(line); m != nil {
		if m[1] != "" {
			article = m[1]
		} else {
			article = m[2]
		}
	}

	title := strings.TrimSpace(strings.TrimLeft(line, "# "))
	if len(title) > 120 {
		// Cut on a rune boundary so the title stays valid UTF-8.
		cut := 120
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}
	if !markerRe.MatchString(line) {
		title = ""
	}
	return title, article
}

// RelevantTo reports whether the chunk is tagged relevant to any of the
// given information types.
func (ch Chunk) RelevantTo(types []fields.InformationType) bool {
	for _, want := range types {
		for _, have := range ch.Metadata.Relevance {
			if want == have {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
