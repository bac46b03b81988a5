package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

// RuleInput is what penalty and floor rules see
type RuleInput struct {
	Bundle    contracts.FeatureBundle
	SubScores contracts.SubScoreSet
}

// PenaltyKey selects the PenaltySet slot a rule fills
type PenaltyKey string

const (
	PenaltyPolicy    PenaltyKey = "P_policy"
	PenaltyParity    PenaltyKey = "P_parity"
	PenaltyStaleness PenaltyKey = "P_staleness"
)

// PenaltyRule computes one penalty and an optional warning
type PenaltyRule struct {
	Name string
	Key  PenaltyKey
	Eval func(in RuleInput, cfg Config) (amount float64, warning string)
}

// FloorRule runs after penalties and may cap the score or only warn
type FloorRule struct {
	Name  string
	Apply func(score float64, in RuleInput, cfg Config) (capped float64, warning string)
}

// DefaultPenaltyRules returns the ordered penalty rules
func DefaultPenaltyRules() []PenaltyRule {
	return []PenaltyRule{
		{Name: "policy", Key: PenaltyPolicy, Eval: policyPenalty},
		{Name: "parity", Key: PenaltyParity, Eval: parityPenalty},
		{Name: "staleness", Key: PenaltyStaleness, Eval: stalenessPenalty},
	}
}

// DefaultFloorRules returns the ordered floor rules
func DefaultFloorRules() []FloorRule {
	return []FloorRule{
		{Name: "oi_floor", Apply: oiFloor},
		{Name: "parity_fail_rate", Apply: parityFailRateWarning},
	}
}

func policyPenalty(in RuleInput, cfg Config) (float64, string) {
	var flags []string
	if in.Bundle.PolicyViolation {
		flags = append(flags, "policy_violation_flag")
	}
	if in.Bundle.DishonestPricing {
		flags = append(flags, "dishonest_pricing_flag")
	}
	if len(flags) == 0 {
		return 0, ""
	}
	return cfg.Penalties.Policy, "Policy violation detected: " + strings.Join(flags, ", ")
}

func parityPenalty(in RuleInput, cfg Config) (float64, string) {
	return in.Bundle.ParityFailRate() * cfg.Penalties.ParityMax, ""
}

// stalenessPenalty is monotone decreasing in IFR
func stalenessPenalty(in RuleInput, cfg Config) (float64, string) {
	gap := (100 - clampScore(in.SubScores[contracts.IFR])) / 100
	return cfg.Penalties.StalenessMax * math.Pow(gap, 2), ""
}

func oiFloor(score float64, in RuleInput, cfg Config) (float64, string) {
	oi := in.SubScores[contracts.OI]
	if oi >= cfg.Floors.OICapUnder {
		return score, ""
	}
	warning := fmt.Sprintf("OI below threshold (%.1f < %.1f): score capped at %.1f",
		oi, cfg.Floors.OICapUnder, cfg.Floors.CapScore)
	return math.Min(score, cfg.Floors.CapScore), warning
}

// parityFailRateWarning only warns; the parity penalty already priced it in
func parityFailRateWarning(score float64, in RuleInput, cfg Config) (float64, string) {
	rate := in.Bundle.ParityFailRate()
	if rate <= cfg.Floors.ParityFailRateCap {
		return score, ""
	}
	return score, fmt.Sprintf("Parity fail rate %.0f%% exceeds cap %.0f%%",
		rate*100, cfg.Floors.ParityFailRateCap*100)
}

func setPenalty(p *contracts.PenaltySet, key PenaltyKey, v float64) {
	switch key {
	case PenaltyPolicy:
		p.Policy = v
	case PenaltyParity:
		p.Parity = v
	case PenaltyStaleness:
		p.Staleness = v
	}
}
