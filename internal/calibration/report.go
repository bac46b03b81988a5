package calibration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

// Success thresholds of the weekly benchmark
const (
	MinAccuracyGainPercent     = 10.0
	MinAdEfficiencyGainPercent = 15.0
	MinR2                      = 0.8
)

// report compares the run with the previous benchmark and persists the record
func (r *runContext) report(ctx context.Context) error {
	store := r.loop.deps.Store
	retry := r.loop.cfg.Retry

	var previous *contracts.BenchmarkRecord
	err := retry.Do(ctx, r.log, "latest_benchmark", func(ctx context.Context) error {
		rec, err := store.LatestBenchmark(ctx, r.tenant)
		if errors.Is(err, contracts.ErrNotFound) {
			return nil
		}
		previous = rec
		return err
	})
	if err != nil {
		return fmt.Errorf("load previous benchmark: %w", err)
	}

	rec := contracts.BenchmarkRecord{
		ID:             uuid.NewString(),
		RunID:          r.result.RunID,
		Tenant:         r.tenant,
		Period:         r.period,
		WeightsVersion: r.state.registry.Current().Version,
		DegradedStages: r.result.DegradedStages(),
		CreatedAt:      r.loop.now(),
	}
	if r.result.Calibration != nil {
		rec.Calibration = *r.result.Calibration
	}
	if fc := r.result.Forecast; fc != nil {
		rec.Forecast = contracts.ForecastSummary{
			Horizon:         fc.Horizon,
			Values:          fc.Values(),
			Slope:           fc.Slope,
			Confidence:      fc.Confidence,
			ConfidenceLabel: fc.ConfidenceLabel,
			ProjectedGain:   ProjectedGain(r.series, fc, rec.Calibration.Elasticity),
		}
	}
	if r.result.Spend != nil {
		rec.Spend = *r.result.Spend
	}

	Compare(&rec, previous)
	rec.Recommendations = Recommend(rec)

	if err := retry.Do(ctx, r.log, "save_benchmark", func(ctx context.Context) error {
		return store.SaveBenchmark(ctx, rec)
	}); err != nil {
		return fmt.Errorf("save benchmark: %w", err)
	}

	r.result.Benchmark = &rec
	return nil
}

// Compare fills deltas, gain percentages and success criteria against previous.
// Without a previous record only the R² criterion can be met.
func Compare(rec *contracts.BenchmarkRecord, previous *contracts.BenchmarkRecord) {
	rec.HasPrevious = previous != nil
	if previous != nil {
		rec.Deltas = contracts.BenchmarkDeltas{
			RMSE:         rec.Calibration.RMSE - previous.Calibration.RMSE,
			R2:           rec.Calibration.R2 - previous.Calibration.R2,
			Elasticity:   rec.Calibration.Elasticity - previous.Calibration.Elasticity,
			AdEfficiency: rec.Spend.AdEfficiency - previous.Spend.AdEfficiency,
			ROI:          rec.Spend.ROI - previous.Spend.ROI,
		}
		rec.AccuracyGainPercent = GainPercent(rec.Calibration.R2, previous.Calibration.R2)
		rec.AdEfficiencyGainPercent = GainPercent(rec.Spend.AdEfficiency, previous.Spend.AdEfficiency)
	}

	rec.Criteria = contracts.SuccessCriteria{
		AccuracyGainMet: rec.HasPrevious && rec.AccuracyGainPercent >= MinAccuracyGainPercent,
		AdEfficiencyMet: rec.HasPrevious && rec.Spend.Available && rec.AdEfficiencyGainPercent >= MinAdEfficiencyGainPercent,
		R2Met:           rec.Calibration.WindowSize > 0 && rec.Calibration.R2 >= MinR2,
	}
	rec.Criteria.Success = rec.Criteria.AccuracyGainMet && rec.Criteria.AdEfficiencyMet && rec.Criteria.R2Met
}

// GainPercent is ((now − prev)/prev)×100, 0 when prev is not positive
func GainPercent(now, prev float64) float64 {
	if prev <= 0 {
		return 0
	}
	return (now - prev) / prev * 100
}

// Recommend derives plain-language followups from a benchmark record
func Recommend(rec contracts.BenchmarkRecord) []string {
	var out []string

	for _, stage := range rec.DegradedStages {
		out = append(out, fmt.Sprintf("Stage %s did not complete; check upstream data before the next run", stage))
	}
	if rec.Calibration.WindowSize > 0 && !rec.Criteria.R2Met {
		out = append(out, fmt.Sprintf("Model fit R² %.2f is below %.2f; collect more periods or review outcome data", rec.Calibration.R2, MinR2))
	}
	if rec.HasPrevious && !rec.Criteria.AccuracyGainMet {
		out = append(out, fmt.Sprintf("Accuracy gain %.1f%% is below the %.0f%% target", rec.AccuracyGainPercent, MinAccuracyGainPercent))
	}
	if rec.HasPrevious && rec.Spend.Available && !rec.Criteria.AdEfficiencyMet {
		out = append(out, fmt.Sprintf("Ad efficiency gain %.1f%% is below the %.0f%% target", rec.AdEfficiencyGainPercent, MinAdEfficiencyGainPercent))
	}
	for _, ch := range rec.Spend.Flagged {
		out = append(out, fmt.Sprintf("Shift spend away from %s: cost per result exceeds %.2f", ch, rec.Spend.Threshold))
	}
	if rec.Forecast.Horizon > 0 && rec.Forecast.Slope < 0 {
		out = append(out, "Composite score is forecast to decline; prioritize the weakest sub-scores")
	}
	return out
}
