package timeseries

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

func TestSmooth(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		check  func(t *testing.T, got []float64)
	}{
		{
			name:   "constant series is unchanged",
			values: []float64{50, 50, 50, 50, 50},
			check: func(t *testing.T, got []float64) {
				for _, v := range got {
					assert.InDelta(t, 50.0, v, 1e-12)
				}
			},
		},
		{
			name:   "two points pass through",
			values: []float64{10, 90},
			check: func(t *testing.T, got []float64) {
				assert.Equal(t, []float64{10, 90}, got)
			},
		},
		{
			name:   "empty stays empty",
			values: []float64{},
			check: func(t *testing.T, got []float64) {
				assert.Empty(t, got)
			},
		},
		{
			name:   "spike is damped",
			values: []float64{50, 50, 50, 90, 50},
			check: func(t *testing.T, got []float64) {
				assert.Less(t, got[3], 90.0)
				assert.Greater(t, got[3], 50.0)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Smooth(tt.values, DefaultKalman()))
		})
	}
}

func TestSmoothDoesNotAliasInput(t *testing.T) {
	in := []float64{1, 2}
	out := Smooth(in, DefaultKalman())
	out[0] = 99
	assert.Equal(t, 1.0, in[0])
}

func TestSmoothPoints(t *testing.T) {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	points := []contracts.TimeSeriesPoint{
		{Timestamp: base, RawValue: 40},
		{Timestamp: base.AddDate(0, 0, 7), RawValue: 60},
		{Timestamp: base.AddDate(0, 0, 14), RawValue: 50},
	}

	got := SmoothPoints(points, DefaultKalman())
	require.Len(t, got, 3)
	assert.InDelta(t, 40.0, got[0].SmoothedValue, 1e-9)
	assert.NotEqual(t, 60.0, got[1].SmoothedValue)
	assert.Equal(t, points[2].RawValue, got[2].RawValue)
}

func TestAnalyzeTrend(t *testing.T) {
	tests := []struct {
		name      string
		values    []float64
		direction string
		positive  bool
	}{
		{"increasing", []float64{50, 52, 54, 56, 58, 60}, Increasing, true},
		{"decreasing", []float64{60, 57, 54, 51, 48}, Decreasing, false},
		{"flat", []float64{50, 50.01, 50, 50.02, 50}, Stable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeTrend(tt.values)
			assert.Equal(t, tt.direction, got.Direction)
			if tt.positive {
				assert.Greater(t, got.Slope, 0.0)
			}
		})
	}

	exact := AnalyzeTrend([]float64{50, 52, 54, 56})
	assert.InDelta(t, 2.0, exact.Slope, 1e-9)
	assert.InDelta(t, 1.0, exact.R2, 1e-9)
	assert.Equal(t, "high", exact.Significance)

	constant := AnalyzeTrend([]float64{5, 5, 5})
	assert.Equal(t, 0.0, constant.R2)
	assert.Equal(t, "low", constant.Significance)
}

func TestVolatility(t *testing.T) {
	assert.Equal(t, 0.0, Volatility([]float64{10}))
	assert.InDelta(t, 0.0, Volatility([]float64{10, 11, 12.1}), 1e-9)
	// returns +0.5 and -0.5 → population stddev 0.5
	assert.InDelta(t, 0.5, Volatility([]float64{100, 150, 75}), 1e-9)
	// zero base is skipped
	assert.Len(t, Returns([]float64{0, 10, 20}), 1)

	assert.Equal(t, "high", StabilityLabel(0.05))
	assert.Equal(t, "medium", StabilityLabel(0.15))
	assert.Equal(t, "low", StabilityLabel(0.3))
}

func TestCorrelate(t *testing.T) {
	c, err := Correlate([]float64{1, 2, 3, 4}, []float64{2, 4, 6, 8})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, c.Coefficient, 1e-9)
	assert.Equal(t, "strong", c.Strength)
	assert.Equal(t, "positive", c.Direction)

	c, err = Correlate([]float64{1, 2, 3, 4}, []float64{8, 6, 4, 2})
	require.NoError(t, err)
	assert.Equal(t, "negative", c.Direction)

	c, err = Correlate([]float64{1, 2, 3}, []float64{5, 5, 5})
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Coefficient)
	assert.Equal(t, "weak", c.Strength)

	_, err = Correlate([]float64{1, 2}, []float64{1})
	var verr contracts.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestPatterns(t *testing.T) {
	up := Patterns([]float64{50, 52, 55, 60, 66, 73})
	assert.Contains(t, up, PatternUpwardTrend)

	down := Patterns([]float64{80, 76, 70, 62, 55, 50})
	assert.Contains(t, down, PatternDownwardTrend)

	calm := Patterns([]float64{50, 50.5, 50.2, 50.4, 50.3, 50.1})
	assert.Contains(t, calm, PatternLowVolatility)
	assert.NotContains(t, calm, PatternUpwardTrend)

	wild := Patterns([]float64{50, 80, 40, 90, 30, 85})
	assert.Contains(t, wild, PatternHighVolatility)

	accel := Patterns([]float64{50, 51, 52, 53, 60})
	assert.Contains(t, accel, PatternRecentAcceleration)

	assert.Empty(t, Patterns(nil))
}

func TestSummarizeAndMomentum(t *testing.T) {
	s := Summarize([]float64{40, 60, 50, 70})
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 70.0, s.Current)
	assert.Equal(t, 55.0, s.Mean)
	assert.Equal(t, 55.0, s.Median)
	assert.Equal(t, 40.0, s.Min)
	assert.Equal(t, 70.0, s.Max)
	assert.Equal(t, 3, s.BestIndex)
	assert.Equal(t, 0, s.WorstIndex)
	assert.InDelta(t, 75.0, s.PercentChange, 1e-9)

	assert.Equal(t, Summary{}, Summarize(nil))

	m := ComputeMomentum([]float64{50, 50, 50, 60, 60, 60})
	assert.Equal(t, "accelerating", m.Direction)
	assert.InDelta(t, 10.0, m.Change, 1e-9)

	m = ComputeMomentum([]float64{60, 50})
	assert.Equal(t, "decelerating", m.Direction)

	assert.Equal(t, "steady", ComputeMomentum([]float64{1}).Direction)
}

func TestAnalyze(t *testing.T) {
	a, err := Analyze([]float64{50, 52, 54, 56, 58, 60}, []float64{10, 11, 12, 13, 14, 15})
	require.NoError(t, err)

	assert.Equal(t, Increasing, a.Trend.Direction)
	require.NotNil(t, a.Correlation)
	assert.Equal(t, "strong", a.Correlation.Strength)
	assert.Len(t, a.Smoothed, 6)

	a, err = Analyze([]float64{50, 52}, nil)
	require.NoError(t, err)
	assert.Nil(t, a.Correlation)

	_, err = Analyze([]float64{1, 2, 3}, []float64{1})
	assert.Error(t, err)
}

func TestForecastUpwardSeries(t *testing.T) {
	values := []float64{50, 52, 54, 56, 58, 60, 62, 64}

	f, err := Forecast(values, 4, 0.95)
	require.NoError(t, err)

	require.Len(t, f.Points, 4)
	assert.Greater(t, f.Slope, 0.0)
	assert.Greater(t, f.Final(), f.Points[0].Value)
	for i, p := range f.Points {
		assert.Equal(t, i+1, p.Step)
		assert.LessOrEqual(t, p.Lower, p.Value)
		assert.GreaterOrEqual(t, p.Upper, p.Value)
	}
	// confidence decays with the step
	assert.Greater(t, f.Points[0].Confidence, f.Points[3].Confidence)
	assert.Contains(t, []string{"high", "medium", "low"}, f.ConfidenceLabel)
	assert.Equal(t, "kalman_linear_ensemble", f.Method)
}

func TestForecastIntervalsWidenWithLevel(t *testing.T) {
	values := []float64{50, 55, 52, 58, 54, 60}

	narrow, err := Forecast(values, 2, 0.90)
	require.NoError(t, err)
	wide, err := Forecast(values, 2, 0.99)
	require.NoError(t, err)

	assert.Greater(t, wide.Points[1].Upper-wide.Points[1].Lower, narrow.Points[1].Upper-narrow.Points[1].Lower)
}

func TestForecastShortSeriesIsLowConfidence(t *testing.T) {
	f, err := Forecast([]float64{42, 44}, 3, 0)
	require.NoError(t, err)

	assert.Equal(t, "naive", f.Method)
	assert.Equal(t, "low", f.ConfidenceLabel)
	assert.Equal(t, []float64{44, 44, 44}, f.Values())
	assert.Equal(t, 0.95, f.Level)
}

func TestForecastValidation(t *testing.T) {
	_, err := Forecast(nil, 4, 0.95)
	assert.Error(t, err)

	_, err = Forecast([]float64{1, 2, 3}, 0, 0.95)
	assert.Error(t, err)

	_, err = Forecast([]float64{1, 2, 3}, 13, 0.95)
	assert.Error(t, err)

	_, err = Forecast([]float64{1, 2, 3}, 4, 0.8)
	assert.Error(t, err)
}
