package calibration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/features"
	"github.com/wonny/dealerai/backend/internal/learner"
	"github.com/wonny/dealerai/backend/internal/scoring"
	"github.com/wonny/dealerai/backend/internal/weights"
	"github.com/wonny/dealerai/backend/pkg/metrics"
)

// Dependencies are the collaborators of the loop.
// Spend and Listings are optional.
type Dependencies struct {
	Signals   contracts.SignalSource
	Spend     contracts.SpendLedger
	Listings  contracts.ListingSource
	Store     contracts.Store
	Engine    *scoring.Engine
	Extractor *features.Extractor
	Metrics   *metrics.Recorder
}

// BenchmarkHandler receives every persisted benchmark record
type BenchmarkHandler func(rec contracts.BenchmarkRecord)

// tenantState is the only mutable state of a tenant
type tenantState struct {
	run      sync.Mutex // one run per tenant at a time
	registry *weights.Registry
	learner  *learner.Learner
}

// Loop runs Ingest → Calibrate → Reinforce → Predict → OptimizeSpend → Report
// ⭐ SSOT: 주간 캘리브레이션 루프는 여기서만
type Loop struct {
	cfg  Config
	deps Dependencies

	mu       sync.Mutex // guards tenants and handlers
	tenants  map[string]*tenantState
	handlers []BenchmarkHandler

	now func() time.Time
	log zerolog.Logger
}

// NewLoop creates a loop; Store, Signals, Engine and Extractor are required
func NewLoop(cfg Config, deps Dependencies, log zerolog.Logger) (*Loop, error) {
	if deps.Store == nil {
		return nil, errors.New("calibration loop requires a store")
	}
	if deps.Signals == nil {
		return nil, errors.New("calibration loop requires a signal source")
	}
	if deps.Engine == nil || deps.Extractor == nil {
		return nil, errors.New("calibration loop requires an engine and an extractor")
	}
	if cfg.WindowPeriods < MinWindowPeriods {
		return nil, fmt.Errorf("window of %d periods is below the minimum %d", cfg.WindowPeriods, MinWindowPeriods)
	}

	return &Loop{
		cfg:     cfg,
		deps:    deps,
		tenants: make(map[string]*tenantState),
		now:     time.Now,
		log:     log.With().Str("component", "calibration.loop").Logger(),
	}, nil
}

// WithClock overrides the time source
func (l *Loop) WithClock(now func() time.Time) *Loop {
	l.now = now
	return l
}

// OnBenchmark registers a handler for new benchmark records
func (l *Loop) OnBenchmark(h BenchmarkHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// Registry returns the tenant's weight registry, restoring it on first use
func (l *Loop) Registry(ctx context.Context, tenant string) (*weights.Registry, error) {
	st, err := l.state(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return st.registry, nil
}

// Learner returns the tenant's learner, restoring it on first use
func (l *Loop) Learner(ctx context.Context, tenant string) (*learner.Learner, error) {
	st, err := l.state(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return st.learner, nil
}

// CurrentWeights returns the tenant's active weight vector
func (l *Loop) CurrentWeights(ctx context.Context, tenant string) (contracts.WeightVector, error) {
	st, err := l.state(ctx, tenant)
	if err != nil {
		return contracts.WeightVector{}, err
	}
	return st.registry.Current(), nil
}

func (l *Loop) state(ctx context.Context, tenant string) (*tenantState, error) {
	if tenant == "" {
		return nil, contracts.ValidationError{Field: "tenant", Message: "required"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if st, ok := l.tenants[tenant]; ok {
		return st, nil
	}

	reg := weights.NewRegistry(tenant, l.deps.Store, l.log).WithClock(l.now)
	if err := reg.Restore(ctx); err != nil {
		return nil, err
	}

	lrn := learner.NewWithConfig(l.cfg.Learner, reg, l.log)
	samples, err := l.deps.Store.ListSamples(ctx, tenant, l.cfg.Learner.MaxBuffer)
	if err != nil {
		return nil, fmt.Errorf("restore training samples: %w", err)
	}
	lrn.Seed(samples)

	st := &tenantState{registry: reg, learner: lrn}
	l.tenants[tenant] = st
	return st, nil
}

// Run executes one week for one tenant. period is rounded down to its
// Monday. Ingest failure aborts the run and is returned as the error; later
// stage failures degrade and Report still runs. A week that already has a
// benchmark is not recomputed: the stored record comes back with AlreadyDone.
func (l *Loop) Run(ctx context.Context, tenant string, period time.Time) (*RunResult, error) {
	start := l.now()
	period = WeekOf(period)
	result := &RunResult{
		RunID:  uuid.NewString(),
		Tenant: tenant,
		Period: period,
	}

	st, err := l.state(ctx, tenant)
	if err != nil {
		result.Aborted = true
		result.Error = fmt.Errorf("restore tenant state: %w", err)
		result.skipAll(nil)
		result.Duration = l.now().Sub(start)
		l.deps.Metrics.ObserveRun("aborted")
		return result, result.Error
	}

	st.run.Lock()
	defer st.run.Unlock()

	if l.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.RunTimeout)
		defer cancel()
	}

	existing, err := l.deps.Store.BenchmarkForPeriod(ctx, tenant, period)
	switch {
	case err == nil:
		result.AlreadyDone = true
		result.Success = true
		result.Benchmark = existing
		result.skipAll(nil)
		result.Weights = st.registry.Current()
		result.Duration = l.now().Sub(start)
		l.deps.Metrics.ObserveRun("already_done")
		l.log.Info().Str("tenant", tenant).Time("period", period).Str("benchmark_id", existing.ID).
			Msg("period already calibrated, skipping")
		return result, nil
	case !errors.Is(err, contracts.ErrNotFound):
		result.Aborted = true
		result.Error = fmt.Errorf("check existing benchmark: %w", err)
		result.skipAll(nil)
		result.Weights = st.registry.Current()
		result.Duration = l.now().Sub(start)
		l.deps.Metrics.ObserveRun("aborted")
		return result, result.Error
	}

	log := l.log.With().Str("tenant", tenant).Str("run_id", result.RunID).Logger()
	log.Info().Time("period", period).Msg("calibration run started")

	run := &runContext{
		loop:   l,
		state:  st,
		result: result,
		tenant: tenant,
		period: period,
		log:    log,
	}

	// Ingest
	if err := run.stage(ctx, StageIngest, run.ingest); err != nil {
		result.Aborted = true
		result.Error = fmt.Errorf("ingest failed: %w", err)
		for _, s := range Stages[1:] {
			result.record(s, StatusSkipped, nil, 0)
		}
		result.Weights = st.registry.Current()
		result.Duration = l.now().Sub(start)
		l.deps.Metrics.ObserveRun("aborted")
		log.Error().Err(err).Msg("calibration run aborted")
		return result, result.Error
	}

	_ = run.stage(ctx, StageCalibrate, run.calibrate)
	_ = run.stage(ctx, StageReinforce, run.reinforce)
	_ = run.stage(ctx, StagePredict, run.predict)
	_ = run.stage(ctx, StageOptimizeSpend, run.optimizeSpend)
	reportErr := run.stage(ctx, StageReport, run.report)

	result.Weights = st.registry.Current()
	result.Success = reportErr == nil
	result.Duration = l.now().Sub(start)

	outcome := "completed"
	if len(result.DegradedStages()) > 0 {
		outcome = "degraded"
	}
	l.deps.Metrics.ObserveRun(outcome)

	log.Info().
		Strs("completed", result.CompletedStages).
		Strs("degraded", result.DegradedStages()).
		Int("weights_version", result.Weights.Version).
		Dur("duration", result.Duration).
		Msg("calibration run finished")

	if result.Benchmark != nil && reportErr == nil {
		l.publish(*result.Benchmark)
	}
	return result, nil
}

// RunAll runs tenants concurrently; one tenant's failure never stops another
func (l *Loop) RunAll(ctx context.Context, tenants []string, period time.Time) ([]*RunResult, error) {
	results := make([]*RunResult, len(tenants))
	errs := make([]error, len(tenants))

	var g errgroup.Group
	if l.cfg.MaxConcurrentTenants > 0 {
		g.SetLimit(l.cfg.MaxConcurrentTenants)
	}

	for i, tenant := range tenants {
		i, tenant := i, tenant
		g.Go(func() error {
			res, err := l.Run(ctx, tenant, period)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("tenant %s: %w", tenant, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

func (l *Loop) publish(rec contracts.BenchmarkRecord) {
	l.mu.Lock()
	handlers := make([]BenchmarkHandler, len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.Unlock()

	for _, h := range handlers {
		h(rec)
	}
}

// stageStatus maps a stage error onto its recorded status
func stageStatus(stage Stage, err error) StageStatus {
	switch {
	case err == nil:
		return StatusCompleted
	case errors.Is(err, errSkipped):
		return StatusSkipped
	case stage == StageIngest:
		return StatusFailed
	default:
		return StatusDegraded
	}
}

// errSkipped marks a stage that had nothing to do
var errSkipped = errors.New("stage skipped")

type runContext struct {
	loop   *Loop
	state  *tenantState
	result *RunResult
	tenant string
	period time.Time
	series []float64 // composite history seen by Predict
	log    zerolog.Logger
}

func (r *runContext) stage(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	started := r.loop.now()
	err := fn(ctx)
	elapsed := r.loop.now().Sub(started)

	status := stageStatus(stage, err)
	r.result.record(stage, status, err, elapsed)
	r.loop.deps.Metrics.ObserveStage(string(stage), string(status), elapsed)

	evt := r.log.Info()
	if status == StatusDegraded || status == StatusFailed {
		evt = r.log.Warn().Err(err)
	}
	evt.Str("stage", string(stage)).Str("status", string(status)).Dur("duration", elapsed).Msg("stage finished")

	if status == StatusSkipped {
		return nil
	}
	return err
}
