package calibration

import (
	"context"
	"fmt"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/timeseries"
)

// predict smooths the composite series and forecasts the next periods
func (r *runContext) predict(ctx context.Context) error {
	cfg := r.loop.cfg

	var points []contracts.TimeSeriesPoint
	err := cfg.Retry.Do(ctx, r.log, "list_points", func(ctx context.Context) error {
		var err error
		points, err = r.loop.deps.Store.ListPoints(ctx, r.tenant, cfg.HistoryPeriods)
		return err
	})
	if err != nil {
		return fmt.Errorf("list series: %w", err)
	}

	raw := contracts.RawValues(points)
	fc, err := timeseries.Forecast(raw, cfg.ForecastHorizon, cfg.ForecastLevel)
	if err != nil {
		return fmt.Errorf("forecast: %w", err)
	}
	r.result.Forecast = fc
	r.series = raw
	return nil
}

// ProjectedGain converts the forecast lift over the latest smoothed value
// into outcome units using the calibrated elasticity.
func ProjectedGain(raw []float64, fc *timeseries.ForecastResult, elasticity float64) float64 {
	if fc == nil || len(raw) == 0 {
		return 0
	}
	smoothed := timeseries.Smooth(raw, timeseries.DefaultKalman())
	return (fc.Final() - smoothed[len(smoothed)-1]) * elasticity
}
