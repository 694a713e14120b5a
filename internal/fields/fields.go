// Package fields defines the canonical field model shared by every
// extraction strategy. Strategies populate FieldSet values; the voting
// resolver and completeness scorer consume them without strategy-specific
// special cases.
package fields

import "strings"

// InformationType groups contract fields into independently extractable
// categories. Each type maps to one extraction task.
type InformationType string

const (
	TypeBasicInfo  InformationType = "basic-info"
	TypeParties    InformationType = "parties"
	TypeFinancial  InformationType = "financial"
	TypeTime       InformationType = "time"
	TypeMilestones InformationType = "milestones"
	TypePayment    InformationType = "payment"
	TypeLegalTerms InformationType = "legal-terms"
)

// AllTypes returns the default task set, in catalog order.
func AllTypes() []InformationType {
	return []InformationType{
		TypeBasicInfo,
		TypeParties,
		TypeFinancial,
		TypeTime,
		TypeMilestones,
		TypePayment,
		TypeLegalTerms,
	}
}

// ValidType reports whether t names a known information type.
func ValidType(t InformationType) bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Kind describes how a field value should be normalized and compared.
type Kind string

const (
	KindText   Kind = "text"
	KindNumber Kind = "number"
	KindMoney  Kind = "money"
	KindDate   Kind = "date"
)

// Def describes one target field of the extraction schema.
type Def struct {
	Name     string          `json:"name"`
	Group    InformationType `json:"group"`
	Kind     Kind            `json:"kind"`
	Weight   float64         `json:"weight"`
	Required bool            `json:"required"`
}

// SourceSpan points back to where a value was found in the source text.
type SourceSpan struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	ChunkID string `json:"chunk_id,omitempty"`
}

// Value is the canonical extracted field value. Every strategy must
// produce this shape.
type Value struct {
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	Source     SourceSpan `json:"source,omitempty"`
}

// Set maps field name to its extracted value.
type Set map[string]Value

// Merge copies values from other into s, keeping the existing value when
// both sets contain the field and the existing confidence is higher.
func (s Set) Merge(other Set) {
	for name, v := range other {
		if cur, ok := s[name]; ok && cur.Confidence >= v.Confidence {
			continue
		}
		s[name] = v
	}
}

// Present reports whether the field exists with a non-empty value.
func (s Set) Present(name string) bool {
	v, ok := s[name]
	return ok && strings.TrimSpace(v.Value) != ""
}

// DefaultContractFields returns the built-in contract field catalog.
func DefaultContractFields() []Def {
	return []Def{
		{Name: "contract_title", Group: TypeBasicInfo, Kind: KindText, Weight: 2, Required: true},
		{Name: "contract_number", Group: TypeBasicInfo, Kind: KindText, Weight: 1, Required: false},
		{Name: "contract_type", Group: TypeBasicInfo, Kind: KindText, Weight: 1, Required: false},
		{Name: "signing_location", Group: TypeBasicInfo, Kind: KindText, Weight: 0.5, Required: false},

		{Name: "party_a", Group: TypeParties, Kind: KindText, Weight: 2, Required: true},
		{Name: "party_b", Group: TypeParties, Kind: KindText, Weight: 2, Required: true},
		{Name: "party_a_representative", Group: TypeParties, Kind: KindText, Weight: 0.5, Required: false},
		{Name: "party_b_representative", Group: TypeParties, Kind: KindText, Weight: 0.5, Required: false},

		{Name: "total_amount", Group: TypeFinancial, Kind: KindMoney, Weight: 2, Required: true},
		{Name: "currency", Group: TypeFinancial, Kind: KindText, Weight: 1, Required: false},
		{Name: "tax_rate", Group: TypeFinancial, Kind: KindNumber, Weight: 0.5, Required: false},
		{Name: "deposit_amount", Group: TypeFinancial, Kind: KindMoney, Weight: 1, Required: false},

		{Name: "effective_date", Group: TypeTime, Kind: KindDate, Weight: 2, Required: true},
		{Name: "expiry_date", Group: TypeTime, Kind: KindDate, Weight: 2, Required: false},
		{Name: "signing_date", Group: TypeTime, Kind: KindDate, Weight: 1, Required: false},

		{Name: "milestones", Group: TypeMilestones, Kind: KindText, Weight: 1, Required: false},
		{Name: "delivery_date", Group: TypeMilestones, Kind: KindDate, Weight: 1, Required: false},
		{Name: "acceptance_criteria", Group: TypeMilestones, Kind: KindText, Weight: 0.5, Required: false},

		{Name: "payment_terms", Group: TypePayment, Kind: KindText, Weight: 1.5, Required: false},
		{Name: "payment_method", Group: TypePayment, Kind: KindText, Weight: 0.5, Required: false},
		{Name: "payment_schedule", Group: TypePayment, Kind: KindText, Weight: 1, Required: false},

		{Name: "breach_liability", Group: TypeLegalTerms, Kind: KindText, Weight: 1, Required: false},
		{Name: "dispute_resolution", Group: TypeLegalTerms, Kind: KindText, Weight: 1, Required: false},
		{Name: "governing_law", Group: TypeLegalTerms, Kind: KindText, Weight: 0.5, Required: false},
		{Name: "confidentiality", Group: TypeLegalTerms, Kind: KindText, Weight: 0.5, Required: false},
	}
}

// FieldsForType filters defs down to one information type.
func FieldsForType(defs []Def, t InformationType) []Def {
	var out []Def
	for _, d := range defs {
		if d.Group == t {
			out = append(out, d)
		}
	}
	return out
}

// ByName indexes defs by field name.
func ByName(defs []Def) map[string]Def {
	m := make(map[string]Def, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	return m
}
