package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/dealerai/backend/internal/insights"
	"github.com/wonny/dealerai/backend/internal/timeseries"
)

// forecastCmd prints history and a forecast for one tenant
var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Show score history and forecast for a tenant",
	Long: `Prints the smoothed composite history with trend analysis, then the
forecast with confidence intervals.

Example:
  go run ./cmd/dealerai forecast --tenant dealer-a
  go run ./cmd/dealerai forecast --tenant dealer-a --weeks 8 --confidence 0.99`,
	RunE: runForecast,
}

var (
	forecastTenant     string
	forecastWeeks      int
	forecastHistory    int
	forecastConfidence float64
)

func init() {
	rootCmd.AddCommand(forecastCmd)

	forecastCmd.Flags().StringVar(&forecastTenant, "tenant", "", "tenant")
	forecastCmd.Flags().IntVar(&forecastWeeks, "weeks", timeseries.DefaultHorizon, "forecast horizon (1-12)")
	forecastCmd.Flags().IntVar(&forecastHistory, "history", insights.DefaultHistoryWeeks, "history lookback (1-52)")
	forecastCmd.Flags().Float64Var(&forecastConfidence, "confidence", 0.95, "interval level (0.90, 0.95, 0.99)")
	_ = forecastCmd.MarkFlagRequired("tenant")
}

func runForecast(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	hist, err := a.insights.History(ctx, forecastTenant, insights.HistoryOptions{
		Weeks:     forecastHistory,
		Smoothing: true,
		Analysis:  true,
	})
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	PrintHeader(fmt.Sprintf("%s · last %d weeks", forecastTenant, len(hist.Series)))
	widths := []int{12, 8, 8}
	PrintTableHeader([]string{"Week", "Raw", "Smoothed"}, widths)
	for _, p := range hist.Series {
		PrintTableRow([]string{
			p.Timestamp.Format("2006-01-02"),
			formatFloat(p.RawValue),
			formatFloat(p.SmoothedValue),
		}, widths)
	}
	fmt.Println()
	if hist.Analysis != nil {
		PrintKeyValue("Trend", fmt.Sprintf("%s (slope %.2f, %s significance)",
			hist.Analysis.Trend.Direction, hist.Analysis.Trend.Slope, hist.Analysis.Trend.Significance), 12)
		PrintKeyValue("Stability", hist.Analysis.Stability, 12)
		PrintKeyValue("Momentum", hist.Analysis.Momentum.Direction, 12)
		if len(hist.Analysis.Patterns) > 0 {
			PrintList(hist.Analysis.Patterns)
		}
	}

	fc, err := a.insights.Forecast(ctx, forecastTenant, forecastWeeks, forecastConfidence)
	if err != nil {
		return fmt.Errorf("forecast: %w", err)
	}

	PrintHeader(fmt.Sprintf("Forecast · %s, %.0f%% intervals", fc.Forecast.Method, fc.Forecast.Level*100))
	widths = []int{6, 8, 8, 8}
	PrintTableHeader([]string{"Week", "Value", "Lower", "Upper"}, widths)
	for _, p := range fc.Forecast.Points {
		PrintTableRow([]string{
			fmt.Sprintf("+%d", p.Step),
			formatFloat(p.Value),
			formatFloat(p.Lower),
			formatFloat(p.Upper),
		}, widths)
	}
	fmt.Println()
	PrintKeyValue("Confidence", fmt.Sprintf("%.2f (%s)", fc.Forecast.Confidence, fc.Forecast.ConfidenceLabel), 12)
	if fc.ProjectedGain != 0 {
		PrintKeyValue("Outcome Δ", formatFloat(fc.ProjectedGain), 12)
	}
	return nil
}
