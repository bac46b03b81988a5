package timeseries

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Direction labels
const (
	Increasing = "increasing"
	Decreasing = "decreasing"
	Stable     = "stable"
)

// slopeDeadBand |slope| at or below this is stable
const slopeDeadBand = 0.1

// TrendResult is an OLS fit of value against period index
type TrendResult struct {
	Slope        float64 `json:"slope"`
	Intercept    float64 `json:"intercept"`
	R2           float64 `json:"r2"`
	Direction    string  `json:"direction"`
	Significance string  `json:"significance"`
}

// LinearFit regresses ys on x = 1..n and returns intercept, slope and R².
// R² is 0 for a constant series.
func LinearFit(ys []float64) (alpha, beta, r2 float64) {
	n := len(ys)
	if n == 0 {
		return 0, 0, 0
	}
	if n == 1 {
		return ys[0], 0, 0
	}

	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i + 1)
	}

	alpha, beta = stat.LinearRegression(xs, ys, nil, false)
	if stat.Variance(ys, nil) == 0 {
		return alpha, beta, 0
	}
	r2 = stat.RSquared(xs, ys, nil, alpha, beta)
	if math.IsNaN(r2) {
		r2 = 0
	}
	return alpha, beta, r2
}

// AnalyzeTrend fits a line and labels direction and significance
func AnalyzeTrend(values []float64) TrendResult {
	alpha, beta, r2 := LinearFit(values)

	result := TrendResult{
		Slope:     beta,
		Intercept: alpha,
		R2:        r2,
		Direction: Stable,
	}
	switch {
	case beta > slopeDeadBand:
		result.Direction = Increasing
	case beta < -slopeDeadBand:
		result.Direction = Decreasing
	}

	switch {
	case r2 > 0.7:
		result.Significance = "high"
	case r2 > 0.4:
		result.Significance = "medium"
	default:
		result.Significance = "low"
	}
	return result
}
