package timeseries

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

// Forecast horizon bounds (weeks)
const (
	MinHorizon     = 1
	MaxHorizon     = 12
	DefaultHorizon = 4
)

// 앙상블 가중치
const (
	kalmanWeight = 0.6
	linearWeight = 0.4
)

// zScores for supported confidence levels
var zScores = map[float64]float64{
	0.90: 1.645,
	0.95: 1.96,
	0.99: 2.576,
}

// ForecastPoint is one projected step
type ForecastPoint struct {
	Step       int     `json:"step"`
	Value      float64 `json:"value"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Confidence float64 `json:"confidence"`
}

// ForecastResult is a projection with confidence
type ForecastResult struct {
	Horizon         int             `json:"horizon"`
	Level           float64         `json:"level"`
	Method          string          `json:"method"`
	Points          []ForecastPoint `json:"points"`
	Slope           float64         `json:"slope"`
	Confidence      float64         `json:"confidence"`
	ConfidenceLabel string          `json:"confidence_label"`
}

// Values returns the projected values in step order
func (f *ForecastResult) Values() []float64 {
	out := make([]float64, len(f.Points))
	for i, p := range f.Points {
		out[i] = p.Value
	}
	return out
}

// Final returns the last projected value
func (f *ForecastResult) Final() float64 {
	if len(f.Points) == 0 {
		return 0
	}
	return f.Points[len(f.Points)-1].Value
}

// ConfidenceLabel buckets a confidence in [0,1]
func ConfidenceLabel(c float64) string {
	switch {
	case c >= 0.75:
		return "high"
	case c >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

// Forecast projects horizon steps ahead. level is the interval confidence
// (0.90, 0.95 or 0.99; 0 means 0.95). Short series get a flat projection
// labeled low confidence rather than an error.
func Forecast(values []float64, horizon int, level float64) (*ForecastResult, error) {
	if len(values) == 0 {
		return nil, contracts.ValidationError{Field: "values", Message: "empty series"}
	}
	if horizon < MinHorizon || horizon > MaxHorizon {
		return nil, contracts.ValidationError{
			Field:   "horizon",
			Message: fmt.Sprintf("must be between %d and %d, got %d", MinHorizon, MaxHorizon, horizon),
		}
	}
	if level == 0 {
		level = 0.95
	}
	z, ok := zScores[level]
	if !ok {
		return nil, contracts.ValidationError{Field: "level", Message: "must be one of 0.90, 0.95, 0.99"}
	}

	n := len(values)
	vol := Volatility(values)
	result := &ForecastResult{Horizon: horizon, Level: level}

	if n < minSmoothPoints {
		last := values[n-1]
		result.Method = "naive"
		for k := 1; k <= horizon; k++ {
			result.Points = append(result.Points, interval(k, math.Max(0, last), 0.2, z, vol))
		}
		result.Confidence = 0.2
		result.ConfidenceLabel = ConfidenceLabel(result.Confidence)
		return result, nil
	}

	filtered := Smooth(values, ForecastKalman())
	_, kalmanSlope, _ := LinearFit(filtered)
	alpha, beta, r2 := LinearFit(values)

	confidences := make([]float64, 0, horizon)
	for k := 1; k <= horizon; k++ {
		kalmanValue := filtered[n-1] + kalmanSlope*float64(k)
		kalmanConf := math.Max(0.5, 1-0.1*float64(k))

		linearValue := alpha + beta*float64(n+k)
		linearConf := math.Max(0.4, 1-0.15*float64(k))

		value := math.Max(0, kalmanWeight*kalmanValue+linearWeight*linearValue)
		conf := kalmanWeight*kalmanConf + linearWeight*linearConf

		result.Points = append(result.Points, interval(k, value, conf, z, vol))
		confidences = append(confidences, conf)
	}

	result.Method = "kalman_linear_ensemble"
	result.Slope = kalmanWeight*kalmanSlope + linearWeight*beta
	result.Confidence = stat.Mean(confidences, nil) * (0.5 + 0.5*r2)
	result.ConfidenceLabel = ConfidenceLabel(result.Confidence)
	return result, nil
}

// interval widens with the square root of the step
func interval(step int, value, conf, z, vol float64) ForecastPoint {
	margin := z * vol * math.Sqrt(float64(step)) * math.Abs(value)
	return ForecastPoint{
		Step:       step,
		Value:      value,
		Lower:      math.Max(0, value-margin),
		Upper:      value + margin,
		Confidence: conf,
	}
}
