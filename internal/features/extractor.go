package features

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

// Config holds extractor settings
type Config struct {
	// StaleAfter discounts confidence for data collected earlier than this
	StaleAfter time.Duration
	// StaleDiscount multiplies confidence of stale data
	StaleDiscount float64
	// RecencyWindow decides whether a listing counts as recently updated
	RecencyWindow time.Duration
}

// DefaultConfig returns the default extractor settings
func DefaultConfig() Config {
	return Config{
		StaleAfter:    7 * 24 * time.Hour,
		StaleDiscount: 0.8,
		RecencyWindow: 72 * time.Hour,
	}
}

// sourceTrust 소스 종류별 기본 신뢰도
var sourceTrust = map[string]float64{
	"api":     1.0,
	"scraped": 0.8,
	"mock":    0.5,
}

// Metadata describes where raw signals came from
type Metadata struct {
	Source      string
	SourceTrust float64 // 0 → derived from Source
	CollectedAt time.Time
	Now         time.Time // 0 → time.Now()
}

// VinSummary summarizes VIN-level listing records
type VinSummary struct {
	Count        int     `json:"count"`
	Available    int     `json:"available"`
	Priced       int     `json:"priced"`
	PricedShare  float64 `json:"priced_share"`
	MeanAgeMin   float64 `json:"mean_age_min"`
	MedianAgeMin float64 `json:"median_age_min"`
	FreshShare   float64 `json:"fresh_share"`
}

// Extraction is the result of one extraction
type Extraction struct {
	Features        contracts.RawFeatures `json:"features"`
	Completeness    float64               `json:"completeness"`
	Confidence      float64               `json:"confidence"`
	Missing         []string              `json:"missing"`
	MissingCritical []string              `json:"missing_critical"`
	Derived         []string              `json:"derived"`
	Vin             VinSummary            `json:"vin"`
}

// Extractor turns loosely typed signal payloads into RawFeatures
type Extractor struct {
	cfg Config
	log zerolog.Logger
}

// NewExtractor creates an extractor with default config
func NewExtractor(log zerolog.Logger) *Extractor {
	return NewExtractorWithConfig(DefaultConfig(), log)
}

// NewExtractorWithConfig creates an extractor with custom config
func NewExtractorWithConfig(cfg Config, log zerolog.Logger) *Extractor {
	return &Extractor{
		cfg: cfg,
		log: log.With().Str("component", "features.extractor").Logger(),
	}
}

// ExtractJSON decodes a JSON object and extracts it
func (e *Extractor) ExtractJSON(data []byte, listings []contracts.ListingRecord, meta Metadata) (*Extraction, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, contracts.ValidationError{Field: "raw", Message: fmt.Sprintf("not a JSON object: %v", err)}
	}
	if raw == nil {
		return nil, contracts.ValidationError{Field: "raw", Message: "not a JSON object"}
	}
	return e.Extract(raw, listings, meta)
}

// Extract parses declared fields, derives what listings can supply and
// reports completeness and confidence.
// Missing fields never fail; a field of the wrong kind does.
func (e *Extractor) Extract(raw map[string]interface{}, listings []contracts.ListingRecord, meta Metadata) (*Extraction, error) {
	now := meta.Now
	if now.IsZero() {
		now = time.Now()
	}

	var features contracts.RawFeatures
	for _, spec := range registry {
		value, ok := raw[spec.Name]
		if !ok || value == nil {
			continue
		}

		switch spec.Kind {
		case contracts.KindNumber:
			n, err := toNumber(value)
			if err != nil {
				return nil, contracts.ValidationError{Field: spec.Name, Message: err.Error()}
			}
			features.SetNumber(spec.Name, n)
		case contracts.KindBool:
			b, ok := value.(bool)
			if !ok {
				return nil, contracts.ValidationError{Field: spec.Name, Message: fmt.Sprintf("expected bool, got %T", value)}
			}
			features.SetBool(spec.Name, b)
		}
	}

	result := &Extraction{}
	result.Vin = e.summarizeListings(listings, now)
	result.Derived = e.deriveFromListings(&features, listings, now)
	result.Features = features

	result.Missing = features.Missing()
	for _, name := range result.Missing {
		if spec, ok := Lookup(name); ok && spec.Importance == Critical {
			result.MissingCritical = append(result.MissingCritical, name)
		}
	}

	total := float64(len(contracts.FeatureFieldNames))
	result.Completeness = (total - float64(len(result.Missing))) / total
	result.Confidence = e.confidence(result.Completeness, meta, now)

	if len(result.MissingCritical) > 0 {
		e.log.Debug().
			Strs("missing_critical", result.MissingCritical).
			Float64("completeness", result.Completeness).
			Msg("extraction missing critical fields")
	}

	return result, nil
}

func (e *Extractor) confidence(completeness float64, meta Metadata, now time.Time) float64 {
	trust := meta.SourceTrust
	if trust <= 0 {
		var ok bool
		if trust, ok = sourceTrust[meta.Source]; !ok {
			trust = sourceTrust["scraped"]
		}
	}

	conf := completeness * trust
	if !meta.CollectedAt.IsZero() && now.Sub(meta.CollectedAt) > e.cfg.StaleAfter {
		conf *= e.cfg.StaleDiscount
	}
	return math.Max(0, math.Min(1, conf))
}

// deriveFromListings fills fields the payload lacks. Supplied values win.
func (e *Extractor) deriveFromListings(f *contracts.RawFeatures, listings []contracts.ListingRecord, now time.Time) []string {
	if len(listings) == 0 {
		return nil
	}

	var derived []string
	ages := make([]float64, 0, len(listings))
	pricedAges := make([]float64, 0, len(listings))
	fresh := 0
	for _, l := range listings {
		age := math.Max(0, now.Sub(l.UpdatedAt).Minutes())
		ages = append(ages, age)
		if l.Price > 0 {
			pricedAges = append(pricedAges, age)
		}
		if now.Sub(l.UpdatedAt) <= e.cfg.RecencyWindow {
			fresh++
		}
	}

	if !f.Has("inventory_recency_idx") {
		f.SetNumber("inventory_recency_idx", float64(fresh)/float64(len(listings)))
		derived = append(derived, "inventory_recency_idx")
	}
	if !f.Has("availability_age_min") {
		f.SetNumber("availability_age_min", median(ages))
		derived = append(derived, "availability_age_min")
	}
	if !f.Has("price_age_min") && len(pricedAges) > 0 {
		f.SetNumber("price_age_min", median(pricedAges))
		derived = append(derived, "price_age_min")
	}
	return derived
}

func (e *Extractor) summarizeListings(listings []contracts.ListingRecord, now time.Time) VinSummary {
	summary := VinSummary{Count: len(listings)}
	if len(listings) == 0 {
		return summary
	}

	ages := make([]float64, 0, len(listings))
	fresh := 0
	for _, l := range listings {
		if l.Available {
			summary.Available++
		}
		if l.Price > 0 {
			summary.Priced++
		}
		ages = append(ages, math.Max(0, now.Sub(l.UpdatedAt).Minutes()))
		if now.Sub(l.UpdatedAt) <= e.cfg.RecencyWindow {
			fresh++
		}
	}

	n := float64(len(listings))
	summary.PricedShare = float64(summary.Priced) / n
	summary.FreshShare = float64(fresh) / n
	summary.MeanAgeMin = stat.Mean(ages, nil)
	summary.MedianAgeMin = median(ages)
	return summary
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func toNumber(value interface{}) (float64, error) {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", v.String())
		}
		n = f
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("must be finite")
	}
	return n, nil
}
