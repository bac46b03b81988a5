package contracts

import "time"

// TimeSeriesPoint is one observation of a tracked series
type TimeSeriesPoint struct {
	Timestamp      time.Time          `json:"timestamp"`
	RawValue       float64            `json:"raw_value"`
	SmoothedValue  float64            `json:"smoothed_value"`
	DerivedMetrics map[string]float64 `json:"derived_metrics,omitempty"`
}

// RawValues extracts raw values in order
func RawValues(points []TimeSeriesPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.RawValue
	}
	return out
}
