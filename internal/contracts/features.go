package contracts

import "math"

// RawFeatures is the wire form of a FeatureBundle. A nil field is absent.
// ⭐ SSOT: 점수 엔진 입력 필드 정의는 여기서만
type RawFeatures struct {
	PriceAgeMin         *float64 `json:"price_age_min"`
	AvailabilityAgeMin  *float64 `json:"availability_age_min"`
	MileageAgeMin       *float64 `json:"mileage_age_min"`
	PriceParityOK       *bool    `json:"price_parity_ok"`
	AvailParityOK       *bool    `json:"avail_parity_ok"`
	GBPHoursMatchSite   *bool    `json:"gbp_hours_match_site"`
	AIZeroClickShare    *float64 `json:"ai_zero_click_share"`
	CitationDepthIdx    *float64 `json:"citation_depth_idx"`
	CWVLCPMs            *float64 `json:"cwv_lcp_ms"`
	CWVINPMs            *float64 `json:"cwv_inp_ms"`
	CWVCLS              *float64 `json:"cwv_cls"`
	ReviewReplyRate     *float64 `json:"review_reply_rate"`
	AvgRating           *float64 `json:"avg_rating"`
	ReviewVolume        *float64 `json:"review_volume"`
	InventoryRecencyIdx *float64 `json:"inventory_recency_idx"`
	PolicyViolation     *bool    `json:"policy_violation_flag"`
	DishonestPricing    *bool    `json:"dishonest_pricing_flag"`
	EntityResolveScore  *float64 `json:"entity_resolve_score"`
	SchemaCompleteness  *float64 `json:"schema_completeness"`
	NAPConsistency      *float64 `json:"nap_consistency"`
}

// FeatureBundle is a fully populated, validated feature record
type FeatureBundle struct {
	PriceAgeMin         float64 `json:"price_age_min"`
	AvailabilityAgeMin  float64 `json:"availability_age_min"`
	MileageAgeMin       float64 `json:"mileage_age_min"`
	PriceParityOK       bool    `json:"price_parity_ok"`
	AvailParityOK       bool    `json:"avail_parity_ok"`
	GBPHoursMatchSite   bool    `json:"gbp_hours_match_site"`
	AIZeroClickShare    float64 `json:"ai_zero_click_share"`
	CitationDepthIdx    float64 `json:"citation_depth_idx"`
	CWVLCPMs            float64 `json:"cwv_lcp_ms"`
	CWVINPMs            float64 `json:"cwv_inp_ms"`
	CWVCLS              float64 `json:"cwv_cls"`
	ReviewReplyRate     float64 `json:"review_reply_rate"` // percent, 0..100
	AvgRating           float64 `json:"avg_rating"`        // 1..5
	ReviewVolume        float64 `json:"review_volume"`
	InventoryRecencyIdx float64 `json:"inventory_recency_idx"`
	PolicyViolation     bool    `json:"policy_violation_flag"`
	DishonestPricing    bool    `json:"dishonest_pricing_flag"`
	EntityResolveScore  float64 `json:"entity_resolve_score"`
	SchemaCompleteness  float64 `json:"schema_completeness"`
	NAPConsistency      float64 `json:"nap_consistency"`
}

// FieldKind is the JSON kind a feature field must carry
type FieldKind string

const (
	KindNumber FieldKind = "number"
	KindBool   FieldKind = "bool"
)

type numberRef struct {
	name string
	ptr  **float64
}

type boolRef struct {
	name string
	ptr  **bool
}

func (r *RawFeatures) numberRefs() []numberRef {
	return []numberRef{
		{"price_age_min", &r.PriceAgeMin},
		{"availability_age_min", &r.AvailabilityAgeMin},
		{"mileage_age_min", &r.MileageAgeMin},
		{"ai_zero_click_share", &r.AIZeroClickShare},
		{"citation_depth_idx", &r.CitationDepthIdx},
		{"cwv_lcp_ms", &r.CWVLCPMs},
		{"cwv_inp_ms", &r.CWVINPMs},
		{"cwv_cls", &r.CWVCLS},
		{"review_reply_rate", &r.ReviewReplyRate},
		{"avg_rating", &r.AvgRating},
		{"review_volume", &r.ReviewVolume},
		{"inventory_recency_idx", &r.InventoryRecencyIdx},
		{"entity_resolve_score", &r.EntityResolveScore},
		{"schema_completeness", &r.SchemaCompleteness},
		{"nap_consistency", &r.NAPConsistency},
	}
}

func (r *RawFeatures) boolRefs() []boolRef {
	return []boolRef{
		{"price_parity_ok", &r.PriceParityOK},
		{"avail_parity_ok", &r.AvailParityOK},
		{"gbp_hours_match_site", &r.GBPHoursMatchSite},
		{"policy_violation_flag", &r.PolicyViolation},
		{"dishonest_pricing_flag", &r.DishonestPricing},
	}
}

// FeatureFieldNames lists every declared field in declaration order
var FeatureFieldNames = []string{
	"price_age_min", "availability_age_min", "mileage_age_min",
	"price_parity_ok", "avail_parity_ok", "gbp_hours_match_site",
	"ai_zero_click_share", "citation_depth_idx",
	"cwv_lcp_ms", "cwv_inp_ms", "cwv_cls",
	"review_reply_rate", "avg_rating", "review_volume",
	"inventory_recency_idx", "policy_violation_flag", "dishonest_pricing_flag",
	"entity_resolve_score", "schema_completeness", "nap_consistency",
}

// FieldKindOf returns the kind of a declared field
func FieldKindOf(name string) (FieldKind, bool) {
	var r RawFeatures
	for _, ref := range r.numberRefs() {
		if ref.name == name {
			return KindNumber, true
		}
	}
	for _, ref := range r.boolRefs() {
		if ref.name == name {
			return KindBool, true
		}
	}
	return "", false
}

// SetNumber assigns a numeric field by name. False if the name is not a numeric field.
func (r *RawFeatures) SetNumber(name string, v float64) bool {
	for _, ref := range r.numberRefs() {
		if ref.name == name {
			*ref.ptr = &v
			return true
		}
	}
	return false
}

// SetBool assigns a boolean field by name. False if the name is not a boolean field.
func (r *RawFeatures) SetBool(name string, v bool) bool {
	for _, ref := range r.boolRefs() {
		if ref.name == name {
			*ref.ptr = &v
			return true
		}
	}
	return false
}

// Has reports whether a field is present
func (r *RawFeatures) Has(name string) bool {
	for _, ref := range r.numberRefs() {
		if ref.name == name {
			return *ref.ptr != nil
		}
	}
	for _, ref := range r.boolRefs() {
		if ref.name == name {
			return *ref.ptr != nil
		}
	}
	return false
}

// Missing returns absent fields in declaration order
func (r *RawFeatures) Missing() []string {
	var missing []string
	for _, name := range FeatureFieldNames {
		if !r.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Bundle validates presence of every field and returns the value record.
// Non-finite numbers are rejected.
func (r *RawFeatures) Bundle() (FeatureBundle, error) {
	if missing := r.Missing(); len(missing) > 0 {
		return FeatureBundle{}, &MissingFieldError{Fields: missing}
	}
	for _, ref := range r.numberRefs() {
		if v := **ref.ptr; math.IsNaN(v) || math.IsInf(v, 0) {
			return FeatureBundle{}, ValidationError{Field: ref.name, Message: "must be a finite number"}
		}
	}

	return FeatureBundle{
		PriceAgeMin:         *r.PriceAgeMin,
		AvailabilityAgeMin:  *r.AvailabilityAgeMin,
		MileageAgeMin:       *r.MileageAgeMin,
		PriceParityOK:       *r.PriceParityOK,
		AvailParityOK:       *r.AvailParityOK,
		GBPHoursMatchSite:   *r.GBPHoursMatchSite,
		AIZeroClickShare:    *r.AIZeroClickShare,
		CitationDepthIdx:    *r.CitationDepthIdx,
		CWVLCPMs:            *r.CWVLCPMs,
		CWVINPMs:            *r.CWVINPMs,
		CWVCLS:              *r.CWVCLS,
		ReviewReplyRate:     *r.ReviewReplyRate,
		AvgRating:           *r.AvgRating,
		ReviewVolume:        *r.ReviewVolume,
		InventoryRecencyIdx: *r.InventoryRecencyIdx,
		PolicyViolation:     *r.PolicyViolation,
		DishonestPricing:    *r.DishonestPricing,
		EntityResolveScore:  *r.EntityResolveScore,
		SchemaCompleteness:  *r.SchemaCompleteness,
		NAPConsistency:      *r.NAPConsistency,
	}, nil
}

// Raw converts a bundle back into its wire form
func (b FeatureBundle) Raw() RawFeatures {
	f := func(v float64) *float64 { return &v }
	t := func(v bool) *bool { return &v }
	return RawFeatures{
		PriceAgeMin:         f(b.PriceAgeMin),
		AvailabilityAgeMin:  f(b.AvailabilityAgeMin),
		MileageAgeMin:       f(b.MileageAgeMin),
		PriceParityOK:       t(b.PriceParityOK),
		AvailParityOK:       t(b.AvailParityOK),
		GBPHoursMatchSite:   t(b.GBPHoursMatchSite),
		AIZeroClickShare:    f(b.AIZeroClickShare),
		CitationDepthIdx:    f(b.CitationDepthIdx),
		CWVLCPMs:            f(b.CWVLCPMs),
		CWVINPMs:            f(b.CWVINPMs),
		CWVCLS:              f(b.CWVCLS),
		ReviewReplyRate:     f(b.ReviewReplyRate),
		AvgRating:           f(b.AvgRating),
		ReviewVolume:        f(b.ReviewVolume),
		InventoryRecencyIdx: f(b.InventoryRecencyIdx),
		PolicyViolation:     t(b.PolicyViolation),
		DishonestPricing:    t(b.DishonestPricing),
		EntityResolveScore:  f(b.EntityResolveScore),
		SchemaCompleteness:  f(b.SchemaCompleteness),
		NAPConsistency:      f(b.NAPConsistency),
	}
}

// ParityChecks returns the three parity checks (price, availability, GBP hours)
func (b FeatureBundle) ParityChecks() []bool {
	return []bool{b.PriceParityOK, b.AvailParityOK, b.GBPHoursMatchSite}
}

// ParityFailRate is the failed share of ParityChecks
func (b FeatureBundle) ParityFailRate() float64 {
	checks := b.ParityChecks()
	failed := 0
	for _, ok := range checks {
		if !ok {
			failed++
		}
	}
	return float64(failed) / float64(len(checks))
}
