package timeseries

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Pattern names
const (
	PatternUpwardTrend        = "upward_trend"
	PatternDownwardTrend      = "downward_trend"
	PatternHighVolatility     = "high_volatility"
	PatternLowVolatility      = "low_volatility"
	PatternRecentAcceleration = "recent_acceleration"
)

// Patterns detects named shapes in a series
func Patterns(values []float64) []string {
	var found []string
	n := len(values)

	if third := n / 3; third > 0 {
		firstAvg := stat.Mean(values[:third], nil)
		lastAvg := stat.Mean(values[n-third:], nil)
		if firstAvg > 0 {
			switch {
			case lastAvg > firstAvg*1.1:
				found = append(found, PatternUpwardTrend)
			case lastAvg < firstAvg*0.9:
				found = append(found, PatternDownwardTrend)
			}
		}
	}

	if n >= 2 {
		switch vol := Volatility(values); {
		case vol > 0.15:
			found = append(found, PatternHighVolatility)
		case vol < 0.05:
			found = append(found, PatternLowVolatility)
		}
	}

	if n >= 4 {
		recent := values[n-1] - values[n-2]
		prior := values[n-2] - values[n-3]
		if math.Abs(recent) > 1.5*math.Abs(prior) {
			found = append(found, PatternRecentAcceleration)
		}
	}

	return found
}

// Analysis bundles every descriptive view of one series
type Analysis struct {
	Trend       TrendResult  `json:"trend"`
	Volatility  float64      `json:"volatility"`
	Stability   string       `json:"stability"`
	Correlation *Correlation `json:"correlation,omitempty"`
	Patterns    []string     `json:"patterns"`
	Momentum    Momentum     `json:"momentum"`
	Summary     Summary      `json:"summary"`
	Smoothed    []float64    `json:"smoothed"`
}

// Analyze runs trend, volatility, patterns, momentum and summary over values
// and, when secondary is non-empty, correlates the two series.
func Analyze(values, secondary []float64) (*Analysis, error) {
	vol := Volatility(values)
	a := &Analysis{
		Trend:      AnalyzeTrend(values),
		Volatility: vol,
		Stability:  StabilityLabel(vol),
		Patterns:   Patterns(values),
		Momentum:   ComputeMomentum(values),
		Summary:    Summarize(values),
		Smoothed:   Smooth(values, DefaultKalman()),
	}

	if len(secondary) > 0 {
		c, err := Correlate(values, secondary)
		if err != nil {
			return nil, err
		}
		a.Correlation = &c
	}
	return a, nil
}
