package timeseries

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

// Returns computes period-over-period relative changes, skipping zero bases
func Returns(values []float64) []float64 {
	var out []float64
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		out = append(out, (values[i]-values[i-1])/values[i-1])
	}
	return out
}

// Volatility is the population standard deviation of returns
func Volatility(values []float64) float64 {
	returns := Returns(values)
	if len(returns) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(returns, nil)
	return std
}

// StabilityLabel buckets a volatility
func StabilityLabel(vol float64) string {
	switch {
	case vol < 0.1:
		return "high"
	case vol < 0.2:
		return "medium"
	default:
		return "low"
	}
}

// Correlation is a labeled Pearson coefficient
type Correlation struct {
	Coefficient float64 `json:"coefficient"`
	Strength    string  `json:"strength"`
	Direction   string  `json:"direction"`
}

// Pearson returns the correlation of x and y, 0 when either is constant
func Pearson(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// Correlate labels the Pearson correlation of two equal-length series
func Correlate(x, y []float64) (Correlation, error) {
	if len(x) != len(y) {
		return Correlation{}, contracts.ValidationError{
			Field:   "series",
			Message: fmt.Sprintf("length mismatch: %d vs %d", len(x), len(y)),
		}
	}

	r := Pearson(x, y)
	c := Correlation{Coefficient: r, Direction: "positive"}
	if r < 0 {
		c.Direction = "negative"
	}
	switch abs := math.Abs(r); {
	case abs > 0.7:
		c.Strength = "strong"
	case abs > 0.4:
		c.Strength = "moderate"
	default:
		c.Strength = "weak"
	}
	return c, nil
}

// Summary holds descriptive statistics of a series
type Summary struct {
	Count         int     `json:"count"`
	Current       float64 `json:"current"`
	Mean          float64 `json:"mean"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Median        float64 `json:"median"`
	StdDev        float64 `json:"std_dev"`
	TotalChange   float64 `json:"total_change"`
	PercentChange float64 `json:"percent_change"`
	BestIndex     int     `json:"best_index"`
	WorstIndex    int     `json:"worst_index"`
}

// Summarize computes descriptive statistics
func Summarize(values []float64) Summary {
	n := len(values)
	if n == 0 {
		return Summary{}
	}

	s := Summary{
		Count:   n,
		Current: values[n-1],
		Min:     values[0],
		Max:     values[0],
	}
	for i, v := range values {
		if v > s.Max {
			s.Max, s.BestIndex = v, i
		}
		if v < s.Min {
			s.Min, s.WorstIndex = v, i
		}
	}
	s.Mean, s.StdDev = stat.PopMeanStdDev(values, nil)

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		s.Median = sorted[n/2]
	} else {
		s.Median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	s.TotalChange = values[n-1] - values[0]
	if values[0] != 0 {
		s.PercentChange = s.TotalChange / values[0] * 100
	}
	return s
}

// Momentum compares the latest window with the one before it
type Momentum struct {
	Recent    float64 `json:"recent"`
	Prior     float64 `json:"prior"`
	Change    float64 `json:"change"`
	Direction string  `json:"direction"` // accelerating, decelerating, steady
}

const momentumWindow = 3

// ComputeMomentum compares the mean of the last three points with the three before
func ComputeMomentum(values []float64) Momentum {
	m := Momentum{Direction: "steady"}
	n := len(values)
	if n < 2 {
		if n == 1 {
			m.Recent, m.Prior = values[0], values[0]
		}
		return m
	}

	w := momentumWindow
	if n < 2*w {
		w = n / 2
	}
	m.Recent = stat.Mean(values[n-w:], nil)
	m.Prior = stat.Mean(values[n-2*w:n-w], nil)
	m.Change = m.Recent - m.Prior
	switch {
	case m.Change > 0:
		m.Direction = "accelerating"
	case m.Change < 0:
		m.Direction = "decelerating"
	}
	return m
}
