package contracts

import "time"

// SubScoreID names one of the nine sub-scores
type SubScoreID string

const (
	ATI SubScoreID = "ATI" // Algorithmic Trust Index
	AIV SubScoreID = "AIV" // AI Visibility
	VLI SubScoreID = "VLI" // VIN Listing Integrity
	OI  SubScoreID = "OI"  // Operational Integrity
	GBP SubScoreID = "GBP" // Google Business Profile health
	RRS SubScoreID = "RRS" // Review & Reputation
	WX  SubScoreID = "WX"  // Web Experience
	IFR SubScoreID = "IFR" // Inventory Freshness Rate
	CIS SubScoreID = "CIS" // Content Integrity
)

// AllSubScores is the fixed sub-score order
var AllSubScores = []SubScoreID{ATI, AIV, VLI, OI, GBP, RRS, WX, IFR, CIS}

// SubScoreSet maps each sub-score to a value in [0,100]
type SubScoreSet map[SubScoreID]float64

// Vector returns values in AllSubScores order
func (s SubScoreSet) Vector() []float64 {
	out := make([]float64, len(AllSubScores))
	for i, id := range AllSubScores {
		out[i] = s[id]
	}
	return out
}

// Clone copies the set
func (s SubScoreSet) Clone() SubScoreSet {
	out := make(SubScoreSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// PenaltySet holds the non-negative penalties deducted from the composite
type PenaltySet struct {
	Policy    float64 `json:"P_policy"`
	Parity    float64 `json:"P_parity"`
	Staleness float64 `json:"P_staleness"`
}

// Total sums all penalties
func (p PenaltySet) Total() float64 {
	return p.Policy + p.Parity + p.Staleness
}

// ScoreMetadata describes how a score was produced
type ScoreMetadata struct {
	EngineVersion  string    `json:"engine_version"`
	PolicyHash     string    `json:"policy_hash"`
	WeightsVersion int       `json:"weights_version"`
	ComputedAt     time.Time `json:"computed_at"`
	RawComposite   float64   `json:"raw_composite"`
	FloorApplied   bool      `json:"floor_applied"`
	Warnings       []string  `json:"warnings"`
}

// ScoreResult is the bounded composite with its breakdown
type ScoreResult struct {
	Score     float64       `json:"score"`
	SubScores SubScoreSet   `json:"sub_scores"`
	Penalties PenaltySet    `json:"penalties"`
	Warnings  []string      `json:"warnings"`
	Metadata  ScoreMetadata `json:"metadata"`
}

// TrainingSample pairs features with an observed outcome score
type TrainingSample struct {
	EntityID    string        `json:"entity_id"`
	Features    FeatureBundle `json:"features"`
	SubScores   SubScoreSet   `json:"sub_scores"`
	ActualScore float64       `json:"actual_score"`
	Timestamp   time.Time     `json:"timestamp"`
}
