package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/dealerai/backend/internal/scheduler"
	"github.com/wonny/dealerai/backend/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (완료까지 대기)
  status  - 작업 실행 상태 조회

Example:
  go run ./cmd/dealerai scheduler start
  go run ./cmd/dealerai scheduler list
  go run ./cmd/dealerai scheduler run weekly_calibration`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- weekly_calibration: CALIBRATION_SCHEDULE (기본: 월요일 03:00, 지난주 기준)
- cache_warm: CACHE_WARM_SCHEDULE (기본: 매시 30분, forecast 캐시 갱신)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "작업 실행 상태 조회",
		RunE:  showStatus,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== DealerAI Scheduler ===")

	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	printJobs(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	printJobs(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Running job: %s\n", jobName)
	result, err := sched.RunJobSync(ctx, jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	PrintKeyValue("Duration", result.Duration.String(), 10)
	PrintKeyValue("Attempts", fmt.Sprintf("%d", result.Attempts), 10)
	if !result.Success {
		PrintError(result.Error)
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintSuccess("Job completed")
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.GetJobStats()

	fmt.Println("Job Statistics:")
	fmt.Println()

	for _, jobName := range sched.GetAllJobs() {
		stat := stats[jobName]
		fmt.Printf("📊 %s\n", jobName)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		fmt.Printf("   Total Runs: %d\n", stat.TotalRuns)
		fmt.Printf("   Success: %d (%.1f%%)\n", stat.SuccessCount, stat.SuccessRate*100)
		fmt.Printf("   Failures: %d\n", stat.FailureCount)

		if stat.LastRun != nil {
			fmt.Printf("   Last Run: %s\n", stat.LastRun.Format("2006-01-02 15:04:05"))
		}
		if stat.LastFailure != nil {
			fmt.Printf("   Last Failure: %s\n", stat.LastFailure.Format("2006-01-02 15:04:05"))
		}
		if next, err := sched.NextRun(jobName); err == nil && !next.IsZero() {
			fmt.Printf("   Next Run: %s\n", next.Format("2006-01-02 15:04:05"))
		}

		fmt.Println()
	}

	return nil
}

func printJobs(sched *scheduler.Scheduler) {
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
}

// initScheduler registers the weekly loop and the cache warmer
func initScheduler(a *app) (*scheduler.Scheduler, error) {
	cfg := a.cfg
	if len(cfg.Calibration.Tenants) == 0 {
		a.log.Warn("CALIBRATION_TENANTS is empty; scheduled jobs will do nothing")
	}

	sched := scheduler.NewWithConfig(scheduler.Config{
		MaxRetries: cfg.Scheduler.MaxRetries,
		RetryDelay: cfg.Scheduler.RetryDelay,
	}, a.log)

	if err := sched.AddJob(jobs.NewCalibrationJob(
		a.loop, a.insights, cfg.Calibration.Tenants, cfg.Calibration.Schedule, a.log,
	)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewCacheWarmJob(
		a.insights, cfg.Calibration.Tenants, cfg.Calibration.ForecastHorizon, cfg.Scheduler.CacheWarmSchedule, a.log,
	)); err != nil {
		return nil, err
	}

	return sched, nil
}
