package commands

import (
	"context"
	"fmt"

	"github.com/wonny/dealerai/backend/internal/calibration"
	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/external/dealer"
	"github.com/wonny/dealerai/backend/internal/external/listings"
	"github.com/wonny/dealerai/backend/internal/features"
	"github.com/wonny/dealerai/backend/internal/insights"
	"github.com/wonny/dealerai/backend/internal/realtime"
	"github.com/wonny/dealerai/backend/internal/scoring"
	"github.com/wonny/dealerai/backend/internal/store/memory"
	"github.com/wonny/dealerai/backend/internal/store/postgres"
	"github.com/wonny/dealerai/backend/pkg/config"
	"github.com/wonny/dealerai/backend/pkg/database"
	"github.com/wonny/dealerai/backend/pkg/logger"
	"github.com/wonny/dealerai/backend/pkg/metrics"
	"github.com/wonny/dealerai/backend/pkg/redis"
)

// app holds every wired component a command may need
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	db        *database.DB // nil with the memory store
	redis     *redis.Client
	store     contracts.Store
	metrics   *metrics.Recorder
	engine    *scoring.Engine
	extractor *features.Extractor
	loop      *calibration.Loop
	insights  *insights.Service
	hub       *realtime.Hub
}

// newApp loads config and wires storage, external clients and the loop
func newApp(ctx context.Context) (*app, error) {
	// 1. Load config
	cfg, err := config.LoadWithEnvFile(envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)
	a := &app{cfg: cfg, log: log, metrics: metrics.New()}

	// 3. Storage
	switch cfg.StoreDriver {
	case "postgres":
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		repo := postgres.NewRepository(db.Pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.db = db
		a.store = repo
		log.Info("Connected to database")
	default:
		a.store = memory.New()
		log.Warn("Using in-memory store; state is lost on exit")
	}

	// 4. Redis (optional)
	rc, err := redis.New(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = rc

	// 5. Scoring
	scoringCfg := scoring.DefaultConfig()
	if cfg.Scoring.PolicyPath != "" {
		if scoringCfg, err = scoring.LoadConfig(cfg.Scoring.PolicyPath); err != nil {
			a.Close()
			return nil, fmt.Errorf("load scoring policy: %w", err)
		}
	}
	a.engine, err = scoring.NewEngineWithConfig(scoringCfg, log.Zerolog())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	extractorCfg := features.DefaultConfig()
	extractorCfg.RecencyWindow = cfg.Listings.RecencyWindow
	a.extractor = features.NewExtractorWithConfig(extractorCfg, log.Zerolog())

	// 6. External clients
	dealerClient := dealer.NewFromConfig(cfg.Signals, redis.NewRateLimiter(rc, "dealerai"), log)
	deps := calibration.Dependencies{
		Signals:   dealerClient,
		Spend:     dealerClient,
		Store:     a.store,
		Engine:    a.engine,
		Extractor: a.extractor,
		Metrics:   a.metrics,
	}
	if cfg.Listings.Enabled {
		deps.Listings = listings.NewFromConfig(cfg.Listings, log)
	}

	// 7. Loop, read side and stream
	a.loop, err = calibration.NewLoop(calibration.FromAppConfig(cfg.Calibration), deps, log.Zerolog())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create calibration loop: %w", err)
	}
	a.insights = insights.NewService(a.store, a.loop, redis.NewCache(rc, "dealerai"), log.Zerolog())
	a.hub = realtime.NewHub(log)
	a.loop.OnBenchmark(a.hub.PublishBenchmark)

	return a, nil
}

// Close releases connections
func (a *app) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
