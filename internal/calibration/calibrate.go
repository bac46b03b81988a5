package calibration

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/timeseries"
)

// calibrate regresses outcome on composite over the rolling window
func (r *runContext) calibrate(ctx context.Context) error {
	var window []contracts.PeriodObservation
	err := r.loop.cfg.Retry.Do(ctx, r.log, "list_observations", func(ctx context.Context) error {
		var err error
		window, err = r.loop.deps.Store.ListObservations(ctx, r.tenant, r.loop.cfg.WindowPeriods)
		return err
	})
	if err != nil {
		return fmt.Errorf("list observations: %w", err)
	}

	summary, err := Calibrate(window)
	if err != nil {
		return err
	}
	r.result.Calibration = summary
	return nil
}

// Calibrate fits outcome = intercept + elasticity·composite over the window
// and computes the per-pillar standardized gradient corr(pillar, outcome).
func Calibrate(window []contracts.PeriodObservation) (*contracts.CalibrationSummary, error) {
	if len(window) < MinWindowPeriods {
		return nil, &contracts.InsufficientDataError{
			Stage: string(StageCalibrate),
			What:  "observation periods",
			Have:  float64(len(window)),
			Need:  MinWindowPeriods,
		}
	}

	n := len(window)
	xs := make([]float64, n)
	ys := make([]float64, n)
	secondary := make([]float64, n)
	for i, o := range window {
		xs[i] = o.Composite
		ys[i] = o.Outcome
		secondary[i] = o.Secondary
	}

	if stat.Variance(xs, nil) == 0 {
		return nil, &contracts.InsufficientDataError{
			Stage: string(StageCalibrate),
			What:  "distinct composite values",
			Have:  1,
			Need:  2,
		}
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, alpha, beta)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}

	var sse, ape float64
	apeCount := 0
	for i := range xs {
		pred := alpha + beta*xs[i]
		sse += (ys[i] - pred) * (ys[i] - pred)
		if ys[i] != 0 {
			ape += math.Abs((ys[i] - pred) / ys[i])
			apeCount++
		}
	}

	summary := &contracts.CalibrationSummary{
		Elasticity:           beta,
		Intercept:            alpha,
		R2:                   math.Max(0, math.Min(1, r2)),
		RMSE:                 math.Sqrt(sse / float64(n)),
		SecondaryCorrelation: timeseries.Pearson(secondary, ys),
		Gradients:            make(map[contracts.SubScoreID]float64, len(contracts.AllSubScores)),
		WindowSize:           n,
	}
	if apeCount > 0 {
		summary.MAPE = ape / float64(apeCount) * 100
	}

	pillar := make([]float64, n)
	for _, id := range contracts.AllSubScores {
		for i, o := range window {
			pillar[i] = o.Pillars[id]
		}
		summary.Gradients[id] = timeseries.Pearson(pillar, ys)
	}

	return summary, nil
}
