package scoring

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

// Config is the scoring policy
// ⭐ SSOT: 페널티/플로어 정책은 여기서만 정의
type Config struct {
	Version   string          `yaml:"version" json:"version"`
	Penalties PenaltyConfig   `yaml:"penalties" json:"penalties"`
	Floors    FloorConfig     `yaml:"floors" json:"floors"`
	Freshness FreshnessConfig `yaml:"freshness" json:"freshness"`
	WebVitals WebVitalsConfig `yaml:"web_vitals" json:"web_vitals"`
	Reviews   ReviewsConfig   `yaml:"reviews" json:"reviews"`
}

// PenaltyConfig caps each penalty
type PenaltyConfig struct {
	Policy       float64 `yaml:"policy" json:"policy"`
	ParityMax    float64 `yaml:"parity_max" json:"parity_max"`
	StalenessMax float64 `yaml:"staleness_max" json:"staleness_max"`
}

// FloorConfig holds the hard-floor thresholds
type FloorConfig struct {
	OICapUnder        float64 `yaml:"oi_cap_under" json:"oi_cap_under"`
	CapScore          float64 `yaml:"cap_score" json:"cap_score"`
	ParityFailRateCap float64 `yaml:"parity_fail_rate_cap" json:"parity_fail_rate_cap"`
}

// FreshnessConfig is the age (minutes) at which a field scores zero
type FreshnessConfig struct {
	PriceStaleMin        float64 `yaml:"price_stale_min" json:"price_stale_min"`
	AvailabilityStaleMin float64 `yaml:"availability_stale_min" json:"availability_stale_min"`
	MileageStaleMin      float64 `yaml:"mileage_stale_min" json:"mileage_stale_min"`
}

// WebVitalsConfig holds Core Web Vitals good/poor thresholds
type WebVitalsConfig struct {
	LCPGoodMs float64 `yaml:"lcp_good_ms" json:"lcp_good_ms"`
	LCPPoorMs float64 `yaml:"lcp_poor_ms" json:"lcp_poor_ms"`
	INPGoodMs float64 `yaml:"inp_good_ms" json:"inp_good_ms"`
	INPPoorMs float64 `yaml:"inp_poor_ms" json:"inp_poor_ms"`
	CLSGood   float64 `yaml:"cls_good" json:"cls_good"`
	CLSPoor   float64 `yaml:"cls_poor" json:"cls_poor"`
}

// ReviewsConfig holds review normalization settings
type ReviewsConfig struct {
	// VolumeSaturation is the review count that scores 100
	VolumeSaturation float64 `yaml:"volume_saturation" json:"volume_saturation"`
}

// DefaultConfig returns the built-in policy
func DefaultConfig() Config {
	return Config{
		Version: "dai-v2",
		Penalties: PenaltyConfig{
			Policy:       15,
			ParityMax:    10,
			StalenessMax: 10,
		},
		Floors: FloorConfig{
			OICapUnder:        70,
			CapScore:          60,
			ParityFailRateCap: 0.5,
		},
		Freshness: FreshnessConfig{
			PriceStaleMin:        1440,
			AvailabilityStaleMin: 1440,
			MileageStaleMin:      10080,
		},
		WebVitals: WebVitalsConfig{
			LCPGoodMs: 2500,
			LCPPoorMs: 4000,
			INPGoodMs: 200,
			INPPoorMs: 500,
			CLSGood:   0.1,
			CLSPoor:   0.25,
		},
		Reviews: ReviewsConfig{VolumeSaturation: 500},
	}
}

// LoadConfig reads a YAML policy on top of the defaults.
// 알 수 없는 필드는 즉시 실패
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read scoring policy: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode scoring policy: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks all policy constraints
func (c Config) Validate() error {
	if c.Version == "" {
		return contracts.ValidationError{Field: "version", Message: "required"}
	}

	nonNegative := []struct {
		field string
		value float64
	}{
		{"penalties.policy", c.Penalties.Policy},
		{"penalties.parity_max", c.Penalties.ParityMax},
		{"penalties.staleness_max", c.Penalties.StalenessMax},
	}
	for _, nn := range nonNegative {
		if nn.value < 0 || nn.value > 100 {
			return contracts.ValidationError{Field: nn.field, Message: "must be within [0, 100]"}
		}
	}

	if c.Floors.OICapUnder < 0 || c.Floors.OICapUnder > 100 {
		return contracts.ValidationError{Field: "floors.oi_cap_under", Message: "must be within [0, 100]"}
	}
	if c.Floors.CapScore < 0 || c.Floors.CapScore > 100 {
		return contracts.ValidationError{Field: "floors.cap_score", Message: "must be within [0, 100]"}
	}
	if c.Floors.ParityFailRateCap < 0 || c.Floors.ParityFailRateCap > 1 {
		return contracts.ValidationError{Field: "floors.parity_fail_rate_cap", Message: "must be within [0, 1]"}
	}

	positive := []struct {
		field string
		value float64
	}{
		{"freshness.price_stale_min", c.Freshness.PriceStaleMin},
		{"freshness.availability_stale_min", c.Freshness.AvailabilityStaleMin},
		{"freshness.mileage_stale_min", c.Freshness.MileageStaleMin},
		{"reviews.volume_saturation", c.Reviews.VolumeSaturation},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return contracts.ValidationError{Field: p.field, Message: "must be positive"}
		}
	}

	tiers := []struct {
		field string
		good, poor float64
	}{
		{"web_vitals.lcp", c.WebVitals.LCPGoodMs, c.WebVitals.LCPPoorMs},
		{"web_vitals.inp", c.WebVitals.INPGoodMs, c.WebVitals.INPPoorMs},
		{"web_vitals.cls", c.WebVitals.CLSGood, c.WebVitals.CLSPoor},
	}
	for _, tier := range tiers {
		if tier.good <= 0 || tier.poor <= tier.good {
			return contracts.ValidationError{Field: tier.field, Message: "need 0 < good < poor"}
		}
	}

	return nil
}

// Hash returns a SHA256 of the canonical JSON form of the policy
func (c Config) Hash() string {
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
