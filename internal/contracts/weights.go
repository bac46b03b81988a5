package contracts

import (
	"fmt"
	"math"
	"time"
)

// WeightSource says who produced a weight vector
type WeightSource string

const (
	WeightSourceDefault   WeightSource = "default"
	WeightSourceLearner   WeightSource = "learner"
	WeightSourceReinforce WeightSource = "reinforce"
)

// weightSumTolerance bounds floating drift of Σw around 1
const weightSumTolerance = 1e-6

// FitStats summarizes the fit that produced a vector
type FitStats struct {
	R2          float64 `json:"r2"`
	RMSE        float64 `json:"rmse"`
	SampleCount int     `json:"sample_count"`
	Confidence  float64 `json:"confidence"`
}

// WeightVector is one immutable version of the sub-score coefficients
// ⭐ SSOT: 가중치 버전 정의
type WeightVector struct {
	ID        string                 `json:"id"`
	Tenant    string                 `json:"tenant"`
	Version   int                    `json:"version"`
	Weights   map[SubScoreID]float64 `json:"weights"`
	Intercept float64                `json:"intercept"`
	Fit       FitStats               `json:"fit"`
	Source    WeightSource           `json:"source"`
	CreatedAt time.Time              `json:"created_at"`
}

// DefaultWeights is the built-in prior (Σ = 1)
func DefaultWeights() map[SubScoreID]float64 {
	return map[SubScoreID]float64{
		ATI: 0.15,
		AIV: 0.15,
		VLI: 0.12,
		OI:  0.12,
		GBP: 0.10,
		RRS: 0.10,
		WX:  0.08,
		IFR: 0.10,
		CIS: 0.08,
	}
}

// DefaultWeightVector is version 0 for a tenant
func DefaultWeightVector(tenant string) WeightVector {
	return WeightVector{
		ID:      "default",
		Tenant:  tenant,
		Version: 0,
		Weights: DefaultWeights(),
		Source:  WeightSourceDefault,
	}
}

// Get returns the weight of a sub-score
func (w WeightVector) Get(id SubScoreID) float64 {
	return w.Weights[id]
}

// Sum adds all weights
func (w WeightVector) Sum() float64 {
	total := 0.0
	for _, id := range AllSubScores {
		total += w.Weights[id]
	}
	return total
}

// Validate checks coverage, sign and Σ = 1
func (w WeightVector) Validate() error {
	for _, id := range AllSubScores {
		v, ok := w.Weights[id]
		if !ok {
			return ValidationError{Field: "weights." + string(id), Message: "required"}
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return ValidationError{Field: "weights." + string(id), Message: fmt.Sprintf("must be finite and >= 0, got %v", v)}
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightSumTolerance {
		return ValidationError{Field: "weights", Message: fmt.Sprintf("must sum to 1, got %.6f", sum)}
	}
	return nil
}

// NormalizeWeights floors negatives at 0 and rescales to Σ = 1.
// Returns false when nothing positive remains.
func NormalizeWeights(raw map[SubScoreID]float64) (map[SubScoreID]float64, bool) {
	out := make(map[SubScoreID]float64, len(AllSubScores))
	total := 0.0
	for _, id := range AllSubScores {
		v := raw[id]
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		out[id] = v
		total += v
	}
	if total <= 0 {
		return nil, false
	}
	for id := range out {
		out[id] /= total
	}
	return out, true
}

// CloneWeights copies a weight map
func CloneWeights(w map[SubScoreID]float64) map[SubScoreID]float64 {
	out := make(map[SubScoreID]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
