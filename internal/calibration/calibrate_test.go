package calibration

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/timeseries"
)

func observations(composites ...float64) []contracts.PeriodObservation {
	out := make([]contracts.PeriodObservation, len(composites))
	for i, c := range composites {
		out[i] = contracts.PeriodObservation{
			Tenant:    "dealer-a",
			Period:    week(i),
			Composite: c,
			Outcome:   100 + 20*c,
			Secondary: c / 2,
			Pillars: contracts.SubScoreSet{
				contracts.ATI: c,
				contracts.WX:  50,
				contracts.CIS: 100 - c,
			},
		}
	}
	return out
}

func TestCalibratePerfectLine(t *testing.T) {
	summary, err := Calibrate(observations(60, 62, 65, 66, 70))
	require.NoError(t, err)

	assert.InDelta(t, 20, summary.Elasticity, 1e-9)
	assert.InDelta(t, 100, summary.Intercept, 1e-9)
	assert.InDelta(t, 1, summary.R2, 1e-9)
	assert.InDelta(t, 0, summary.RMSE, 1e-9)
	assert.InDelta(t, 0, summary.MAPE, 1e-9)
	assert.InDelta(t, 1, summary.SecondaryCorrelation, 1e-9)
	assert.Equal(t, 5, summary.WindowSize)

	assert.InDelta(t, 1, summary.Gradients[contracts.ATI], 1e-9)
	assert.InDelta(t, -1, summary.Gradients[contracts.CIS], 1e-9)
	assert.Equal(t, 0.0, summary.Gradients[contracts.WX], "constant pillar has no gradient")
}

func TestCalibrateInsufficientData(t *testing.T) {
	tests := []struct {
		name string
		obs  []contracts.PeriodObservation
	}{
		{"too few periods", observations(60, 61)},
		{"flat composite", observations(60, 60, 60, 60)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calibrate(tt.obs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, contracts.ErrInsufficientData))
		})
	}
}

func TestReinforceWeights(t *testing.T) {
	w := contracts.DefaultWeights()
	g := map[contracts.SubScoreID]float64{
		contracts.ATI: 1,
		contracts.AIV: -1,
	}

	stepped := ReinforceWeights(w, g, 0.01)
	assert.InDelta(t, 0.16, stepped[contracts.ATI], 1e-12)
	assert.InDelta(t, 0.14, stepped[contracts.AIV], 1e-12)
	assert.Equal(t, w[contracts.OI], stepped[contracts.OI])

	// a large step floors at zero
	floored := ReinforceWeights(w, g, 1)
	assert.Equal(t, 0.0, floored[contracts.AIV])

	normalized, ok := contracts.NormalizeWeights(stepped)
	require.True(t, ok)
	total := 0.0
	for _, v := range normalized {
		total += v
	}
	assert.InDelta(t, 1, total, 1e-12)
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		r2, prevR2   float64
		eff, prevEff float64
		success bool
	}{
		{"all criteria met", 0.9, 0.8, 0.03, 0.025, true},
		{"weak fit fails", 0.6, 0.5, 0.03, 0.02, false},
		{"small accuracy gain fails", 0.85, 0.8, 0.03, 0.02, false},
		{"small efficiency gain fails", 0.9, 0.8, 0.021, 0.02, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := &contracts.BenchmarkRecord{
				Calibration: contracts.CalibrationSummary{R2: tt.prevR2, WindowSize: 8},
				Spend:       contracts.SpendSummary{Available: true, AdEfficiency: tt.prevEff},
			}
			rec := &contracts.BenchmarkRecord{
				Calibration: contracts.CalibrationSummary{R2: tt.r2, WindowSize: 8},
				Spend:       contracts.SpendSummary{Available: true, AdEfficiency: tt.eff},
			}

			Compare(rec, prev)

			assert.True(t, rec.HasPrevious)
			assert.InDelta(t, (tt.r2-tt.prevR2)/tt.prevR2*100, rec.AccuracyGainPercent, 1e-9)
			assert.InDelta(t, (tt.eff-tt.prevEff)/tt.prevEff*100, rec.AdEfficiencyGainPercent, 1e-9)
			assert.InDelta(t, tt.r2-tt.prevR2, rec.Deltas.R2, 1e-12)
			assert.Equal(t, tt.success, rec.Criteria.Success)
		})
	}
}

func TestCompareWithoutPrevious(t *testing.T) {
	rec := &contracts.BenchmarkRecord{
		Calibration: contracts.CalibrationSummary{R2: 0.95, WindowSize: 8},
	}

	Compare(rec, nil)

	assert.False(t, rec.HasPrevious)
	assert.True(t, rec.Criteria.R2Met)
	assert.False(t, rec.Criteria.Success)
	assert.Zero(t, rec.AccuracyGainPercent)
}

func TestGainPercent(t *testing.T) {
	assert.InDelta(t, 25, GainPercent(0.75, 0.6), 1e-9)
	assert.Equal(t, 0.0, GainPercent(0.5, 0))
}

func TestRecommend(t *testing.T) {
	rec := contracts.BenchmarkRecord{
		Calibration:    contracts.CalibrationSummary{R2: 0.5, WindowSize: 8},
		Spend:          contracts.SpendSummary{Available: true, Flagged: []string{"social"}, Threshold: 90},
		DegradedStages: []string{"predict"},
		Forecast:       contracts.ForecastSummary{Horizon: 4, Slope: -0.5},
	}
	Compare(&rec, nil)

	recs := Recommend(rec)

	require.Len(t, recs, 4)
	assert.Contains(t, recs[0], "predict")
	assert.Contains(t, recs[1], "R² 0.50")
	assert.Contains(t, recs[2], "social")
	assert.Contains(t, recs[3], "decline")
}

func TestProjectedGain(t *testing.T) {
	raw := []float64{60, 61, 62, 63, 64, 65}
	fc, err := timeseries.Forecast(raw, 4, 0.95)
	require.NoError(t, err)

	gain := ProjectedGain(raw, fc, 100)
	assert.Greater(t, gain, 0.0)
	assert.Equal(t, 0.0, ProjectedGain(nil, fc, 100))
}

func TestPreviousWeek(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"monday", time.Date(2026, 3, 9, 3, 0, 0, 0, time.UTC), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"sunday", time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"wednesday", time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"year boundary", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 12, 22, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PreviousWeek(tt.now))
		})
	}
}
