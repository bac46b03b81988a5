package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/dealerai/backend/internal/calibration"
)

// calibrateCmd runs the weekly loop once
var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Run the weekly calibration loop now",
	Long: `Runs ingest → calibrate → reinforce → predict → optimize spend → report
for one or more tenants and prints each stage outcome.

Tenants default to CALIBRATION_TENANTS; the period defaults to the
previous week (Monday, UTC).

Example:
  go run ./cmd/dealerai calibrate --tenant dealer-a
  go run ./cmd/dealerai calibrate --tenant dealer-a,dealer-b --period 2026-03-02`,
	RunE: runCalibrate,
}

var (
	calibrateTenants []string
	calibratePeriod  string
)

func init() {
	rootCmd.AddCommand(calibrateCmd)

	calibrateCmd.Flags().StringSliceVar(&calibrateTenants, "tenant", nil, "tenants to calibrate (comma separated)")
	calibrateCmd.Flags().StringVar(&calibratePeriod, "period", "", "period start, YYYY-MM-DD")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	tenants := calibrateTenants
	if len(tenants) == 0 {
		tenants = a.cfg.Calibration.Tenants
	}
	if len(tenants) == 0 {
		return fmt.Errorf("no tenants: pass --tenant or set CALIBRATION_TENANTS")
	}

	period := calibration.PreviousWeek(time.Now())
	if calibratePeriod != "" {
		if period, err = time.Parse("2006-01-02", calibratePeriod); err != nil {
			return fmt.Errorf("invalid --period: %w", err)
		}
		period = calibration.WeekOf(period)
	}

	results, runErr := a.loop.RunAll(ctx, tenants, period)
	for _, r := range results {
		if r != nil {
			printRun(r)
		}
	}
	for _, r := range results {
		if r == nil || r.Aborted || r.AlreadyDone {
			continue
		}
		if cerr := a.insights.Invalidate(ctx, r.Tenant); cerr != nil {
			a.log.WithError(cerr).WithField("tenant", r.Tenant).Warn("Cache invalidation failed")
		}
	}

	if runErr != nil {
		fmt.Println()
		PrintError(runErr.Error())
		return runErr
	}
	return nil
}

func printRun(r *calibration.RunResult) {
	PrintHeader(fmt.Sprintf("%s · week of %s", r.Tenant, r.Period.Format("2006-01-02")))
	PrintKeyValue("Run", r.RunID, 14)
	PrintKeyValue("Duration", r.Duration.Round(time.Millisecond).String(), 14)
	fmt.Println()

	if r.AlreadyDone {
		PrintWarning("Week already calibrated, showing the stored benchmark")
		fmt.Println()
	}

	widths := []int{15, 10, 10, 40}
	PrintTableHeader([]string{"Stage", "Status", "Duration", "Detail"}, widths)
	for _, o := range r.Stages {
		PrintTableRow([]string{
			string(o.Stage),
			string(o.Status),
			o.Duration.Round(time.Millisecond).String(),
			truncate(o.Error, 40),
		}, widths)
	}
	fmt.Println()

	PrintKeyValue("Weights", fmt.Sprintf("v%d (%s)", r.Weights.Version, r.Weights.Source), 14)
	if r.Calibration != nil {
		PrintKeyValue("Elasticity", fmt.Sprintf("%s per point", formatFloat(r.Calibration.Elasticity)), 14)
		PrintKeyValue("R²", fmt.Sprintf("%.3f", r.Calibration.R2), 14)
	}
	if r.Forecast != nil {
		PrintKeyValue("Forecast", fmt.Sprintf("%s after %d weeks (%s confidence)",
			formatFloat(r.Forecast.Final()), r.Forecast.Horizon, r.Forecast.ConfidenceLabel), 14)
	}
	if r.Spend != nil && r.Spend.Available {
		PrintKeyValue("Ad efficiency", fmt.Sprintf("%.4f results per unit", r.Spend.AdEfficiency), 14)
		if len(r.Spend.Flagged) > 0 {
			PrintKeyValue("Flagged", strings.Join(r.Spend.Flagged, ", "), 14)
			PrintKeyValue("Savings", formatFloat(r.Spend.ProjectedSavings), 14)
		}
	}

	if r.Benchmark != nil {
		fmt.Println()
		if r.Benchmark.Criteria.Success {
			PrintSuccess("All success criteria met")
		} else {
			PrintWarning("Success criteria not met")
		}
		PrintList(r.Benchmark.Recommendations)
	}
	if r.Aborted {
		fmt.Println()
		PrintError(fmt.Sprintf("Run aborted: %v", r.Error))
	}
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
