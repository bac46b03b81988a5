package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/dealerai/backend/internal/api"
	"github.com/wonny/dealerai/backend/internal/api/handlers"
	"github.com/wonny/dealerai/backend/internal/scheduler"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET  /health                                - Health check
  GET  /metrics                               - Prometheus metrics
  GET  /ws/benchmarks?tenant=                 - Benchmark stream (WebSocket)
  POST /api/score                             - Score one raw payload
  GET  /api/tenants/{tenant}/weights/current  - Current weight vector
  GET  /api/tenants/{tenant}/weights          - Weight versions
  GET  /api/tenants/{tenant}/history          - Score history and analysis
  GET  /api/tenants/{tenant}/forecast         - Forecast
  GET  /api/tenants/{tenant}/benchmarks       - Weekly benchmark records
  POST /api/tenants/{tenant}/calibrate        - Run the weekly loop now

Example:
  go run ./cmd/dealerai api
  go run ./cmd/dealerai api --port 8080 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort          string
	apiWithScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
	apiCmd.Flags().BoolVar(&apiWithScheduler, "with-scheduler", false, "run scheduled jobs in-process")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== DealerAI API Server ===")

	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	if apiPort != "" {
		cfg.Port = apiPort
	}
	log := a.log

	log.WithFields(map[string]interface{}{
		"port":  cfg.Port,
		"env":   cfg.Env,
		"store": cfg.StoreDriver,
	}).Info("Initializing API server")

	h := api.Handlers{
		Score:  handlers.NewScoreHandler(a.extractor, a.engine, a.loop, a.metrics, log),
		Tenant: handlers.NewTenantHandler(a.loop, a.insights, log),
		Hub:    a.hub,
	}
	if cfg.MetricsEnabled {
		h.Metrics = a.metrics
	}
	if a.db != nil {
		h.Database = a.db
	}
	router := api.NewRouter(h, log)
	server := api.New(cfg, log, router)

	var sched *scheduler.Scheduler
	if apiWithScheduler {
		if sched, err = initScheduler(a); err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	if sched != nil {
		printJobs(sched)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	err = server.Run(ctx)
	if sched != nil {
		sched.Stop()
	}
	if err != nil {
		return fmt.Errorf("api server: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
