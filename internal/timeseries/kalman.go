package timeseries

import "github.com/wonny/dealerai/backend/internal/contracts"

// KalmanParams configures the scalar Kalman filter
type KalmanParams struct {
	InitialP float64 // initial estimate covariance
	Q        float64 // process noise
	R        float64 // measurement noise
}

// DefaultKalman is used for history smoothing
func DefaultKalman() KalmanParams {
	return KalmanParams{InitialP: 1, Q: 0.1, R: 1.0}
}

// ForecastKalman trusts measurements less, for projection
func ForecastKalman() KalmanParams {
	return KalmanParams{InitialP: 1, Q: 0.1, R: 2.0}
}

// minSmoothPoints 이보다 짧은 시계열은 그대로 반환
const minSmoothPoints = 3

// Smooth runs a scalar Kalman filter seeded with the first value.
// Series shorter than three points are returned unchanged (as a copy).
func Smooth(values []float64, p KalmanParams) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	if len(values) < minSmoothPoints {
		return out
	}

	x := values[0]
	cov := p.InitialP
	for i, z := range values {
		predCov := cov + p.Q
		gain := predCov / (predCov + p.R)
		x += gain * (z - x)
		cov = (1 - gain) * predCov
		out[i] = x
	}
	return out
}

// SmoothPoints fills SmoothedValue of each point
func SmoothPoints(points []contracts.TimeSeriesPoint, p KalmanParams) []contracts.TimeSeriesPoint {
	smoothed := Smooth(contracts.RawValues(points), p)
	out := make([]contracts.TimeSeriesPoint, len(points))
	for i, pt := range points {
		out[i] = pt
		out[i].SmoothedValue = smoothed[i]
	}
	return out
}
