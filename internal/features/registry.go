package features

import "github.com/wonny/dealerai/backend/internal/contracts"

// Importance ranks how much a field matters for a trustworthy score
type Importance string

const (
	Critical  Importance = "critical"
	Important Importance = "important"
	Optional  Importance = "optional"
)

// FieldSpec describes one declared feature field
type FieldSpec struct {
	Name        string              `json:"name"`
	Kind        contracts.FieldKind `json:"kind"`
	Importance  Importance          `json:"importance"`
	Description string              `json:"description"`
}

// registry 필드 중요도 (리포팅 전용, 추출을 막지 않음)
var registry = []FieldSpec{
	{"price_age_min", contracts.KindNumber, Critical, "Minutes since listed prices were last refreshed"},
	{"availability_age_min", contracts.KindNumber, Critical, "Minutes since availability was last confirmed"},
	{"mileage_age_min", contracts.KindNumber, Optional, "Minutes since odometer readings were refreshed"},
	{"price_parity_ok", contracts.KindBool, Critical, "Listed price matches the dealer site"},
	{"avail_parity_ok", contracts.KindBool, Critical, "Listed availability matches the dealer site"},
	{"gbp_hours_match_site", contracts.KindBool, Important, "Business profile hours match the website"},
	{"ai_zero_click_share", contracts.KindNumber, Critical, "Share of AI answers that surface the dealer without a click"},
	{"citation_depth_idx", contracts.KindNumber, Important, "How deeply AI answers cite dealer pages"},
	{"cwv_lcp_ms", contracts.KindNumber, Optional, "Largest contentful paint in milliseconds"},
	{"cwv_inp_ms", contracts.KindNumber, Optional, "Interaction to next paint in milliseconds"},
	{"cwv_cls", contracts.KindNumber, Optional, "Cumulative layout shift"},
	{"review_reply_rate", contracts.KindNumber, Important, "Percent of reviews that got a reply"},
	{"avg_rating", contracts.KindNumber, Important, "Average star rating"},
	{"review_volume", contracts.KindNumber, Optional, "Number of reviews"},
	{"inventory_recency_idx", contracts.KindNumber, Important, "Share of inventory updated recently"},
	{"policy_violation_flag", contracts.KindBool, Critical, "A platform policy violation is open"},
	{"dishonest_pricing_flag", contracts.KindBool, Critical, "Advertised prices were found misleading"},
	{"entity_resolve_score", contracts.KindNumber, Important, "How reliably AI systems resolve the dealership entity"},
	{"schema_completeness", contracts.KindNumber, Important, "Structured data coverage on dealer pages"},
	{"nap_consistency", contracts.KindNumber, Important, "Name, address and phone consistency across listings"},
}

// AllFields returns every field spec in declaration order
func AllFields() []FieldSpec {
	out := make([]FieldSpec, len(registry))
	copy(out, registry)
	return out
}

// FieldsByImportance returns the specs of one importance level
func FieldsByImportance(level Importance) []FieldSpec {
	var out []FieldSpec
	for _, spec := range registry {
		if spec.Importance == level {
			out = append(out, spec)
		}
	}
	return out
}

// Lookup finds a field spec by name
func Lookup(name string) (FieldSpec, bool) {
	for _, spec := range registry {
		if spec.Name == name {
			return spec, true
		}
	}
	return FieldSpec{}, false
}
