package calibration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/features"
	"github.com/wonny/dealerai/backend/internal/scoring"
	"github.com/wonny/dealerai/backend/internal/store/memory"
	"github.com/wonny/dealerai/backend/pkg/metrics"
)

var baseWeek = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func week(i int) time.Time {
	return baseWeek.AddDate(0, 0, 7*i)
}

// rawSignals builds a complete payload whose quality rises with q ∈ [0,1]
func rawSignals(q float64) map[string]interface{} {
	return map[string]interface{}{
		"price_age_min":          1440 * (1 - q),
		"availability_age_min":   1440 * (1 - q),
		"mileage_age_min":        10080 * (1 - q),
		"price_parity_ok":        true,
		"avail_parity_ok":        true,
		"gbp_hours_match_site":   true,
		"ai_zero_click_share":    q,
		"citation_depth_idx":     q,
		"cwv_lcp_ms":             2000.0,
		"cwv_inp_ms":             150.0,
		"cwv_cls":                0.05,
		"review_reply_rate":      100 * q,
		"avg_rating":             1 + 4*q,
		"review_volume":          50 + 400*q,
		"inventory_recency_idx":  q,
		"policy_violation_flag":  false,
		"dishonest_pricing_flag": false,
		"entity_resolve_score":   q,
		"schema_completeness":    q,
		"nap_consistency":        q,
	}
}

// upwardSignals improves every week; outcome tracks quality
type upwardSignals struct {
	entities int
	observed bool
	drop     []string // fields removed from every payload

	mu       sync.Mutex
	calls    int
	failures int // fail this many calls first
}

func (s *upwardSignals) FetchSnapshots(ctx context.Context, tenant string, period time.Time) ([]contracts.EntitySnapshot, error) {
	s.mu.Lock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return nil, errors.New("signal api unavailable")
	}
	s.mu.Unlock()

	w := int(period.Sub(baseWeek).Hours() / (24 * 7))
	out := make([]contracts.EntitySnapshot, 0, s.entities)
	for e := 0; e < s.entities; e++ {
		q := 0.4 + 0.06*float64(w) + 0.01*float64(e%5)
		raw := rawSignals(q)
		for _, f := range s.drop {
			delete(raw, f)
		}
		snap := contracts.EntitySnapshot{
			EntityID:    fmt.Sprintf("%s-rooftop-%d", tenant, e),
			Raw:         raw,
			Outcome:     20000 * q,
			Secondary:   40 * q,
			CollectedAt: period,
			Source:      "api",
		}
		if s.observed {
			actual := 100 * q
			snap.ObservedScore = &actual
		}
		out = append(out, snap)
	}
	return out, nil
}

type fakeLedger struct {
	channels []contracts.SpendChannel
	err      error
	calls    atomic.Int32
}

func (l *fakeLedger) FetchSpend(ctx context.Context, tenant string, period time.Time) ([]contracts.SpendChannel, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return l.channels, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	cfg.RunTimeout = 30 * time.Second
	return cfg
}

func newTestLoop(t *testing.T, cfg Config, signals contracts.SignalSource, ledger contracts.SpendLedger) (*Loop, *memory.Store) {
	t.Helper()
	store := memory.New()
	deps := Dependencies{
		Signals:   signals,
		Store:     store,
		Engine:    scoring.NewEngine(zerolog.Nop()),
		Extractor: features.NewExtractor(zerolog.Nop()),
		Metrics:   metrics.New(),
	}
	if ledger != nil {
		deps.Spend = ledger
	}
	loop, err := NewLoop(cfg, deps, zerolog.Nop())
	require.NoError(t, err)
	return loop, store
}

func TestEightWeekUpwardScenario(t *testing.T) {
	ledger := &fakeLedger{channels: []contracts.SpendChannel{
		{Name: "search", Spend: 4000, Results: 80, Revenue: 12000},
		{Name: "social", Spend: 3000, Results: 0, Revenue: 0},
	}}
	loop, store := newTestLoop(t, testConfig(), &upwardSignals{entities: 5}, ledger)

	var broadcast atomic.Int32
	loop.OnBenchmark(func(rec contracts.BenchmarkRecord) { broadcast.Add(1) })

	ctx := context.Background()
	var last *RunResult
	for w := 0; w < 8; w++ {
		res, err := loop.Run(ctx, "dealer-a", week(w))
		require.NoError(t, err, "week %d", w)
		require.True(t, res.Success)
		last = res
	}

	// weights moved away from the prior and every version was kept
	assert.Greater(t, last.Weights.Version, 0)
	assert.Equal(t, contracts.WeightSourceReinforce, last.Weights.Source)
	assert.NotEqual(t, contracts.DefaultWeights(), last.Weights.Weights)
	assert.InDelta(t, 1.0, last.Weights.Sum(), 1e-9)

	reg, err := loop.Registry(ctx, "dealer-a")
	require.NoError(t, err)
	assert.Len(t, reg.History(), last.Weights.Version+1)

	// the improving series forecasts upward
	require.NotNil(t, last.Forecast)
	assert.Greater(t, last.Forecast.Slope, 0.0)

	// calibration found a positive elasticity and a good fit
	require.NotNil(t, last.Calibration)
	assert.Greater(t, last.Calibration.Elasticity, 0.0)
	assert.Equal(t, 8, last.Calibration.WindowSize)
	assert.Greater(t, last.Calibration.R2, 0.8)

	// accuracy gain follows ((r2_now − r2_prev)/r2_prev)×100
	benchmarks, err := store.ListBenchmarks(ctx, "dealer-a", 0)
	require.NoError(t, err)
	require.Len(t, benchmarks, 8)
	now, prev := benchmarks[7], benchmarks[6]
	assert.True(t, now.HasPrevious)
	assert.InDelta(t, (now.Calibration.R2-prev.Calibration.R2)/prev.Calibration.R2*100, now.AccuracyGainPercent, 1e-9)

	// social spent without producing a single lead
	assert.Equal(t, []string{"social"}, now.Spend.Flagged)
	assert.InDelta(t, 900, now.Spend.ProjectedSavings, 1e-9)
	require.Len(t, last.Reallocations, 1)
	assert.Equal(t, "search", last.Reallocations[0].To)

	assert.Equal(t, int32(8), broadcast.Load())
}

func TestEarlyWeeksDegradeCalibrate(t *testing.T) {
	loop, _ := newTestLoop(t, testConfig(), &upwardSignals{entities: 3}, nil)

	res, err := loop.Run(context.Background(), "dealer-a", week(0))
	require.NoError(t, err)

	calib, ok := res.Outcome(StageCalibrate)
	require.True(t, ok)
	assert.Equal(t, StatusDegraded, calib.Status)
	assert.Contains(t, calib.Error, "insufficient observation periods")

	reinforce, _ := res.Outcome(StageReinforce)
	assert.Equal(t, StatusSkipped, reinforce.Status)

	spend, _ := res.Outcome(StageOptimizeSpend)
	assert.Equal(t, StatusSkipped, spend.Status)

	report, _ := res.Outcome(StageReport)
	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, 0, res.Weights.Version)
	require.NotNil(t, res.Benchmark)
	assert.False(t, res.Benchmark.Spend.Available)
	assert.Contains(t, res.Benchmark.DegradedStages, string(StageCalibrate))
}

func TestIncompleteIngestAbortsRun(t *testing.T) {
	signals := &upwardSignals{entities: 4, drop: []string{"cwv_lcp_ms", "cwv_inp_ms", "cwv_cls", "review_volume", "nap_consistency"}}
	loop, store := newTestLoop(t, testConfig(), signals, &fakeLedger{})
	ctx := context.Background()

	res, err := loop.Run(ctx, "dealer-a", week(0))

	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrInsufficientData))
	var insufficient *contracts.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "ingest", insufficient.Stage)
	assert.InDelta(t, 0.75, insufficient.Have, 1e-9)

	assert.True(t, res.Aborted)
	assert.False(t, res.Success)
	ingest, _ := res.Outcome(StageIngest)
	assert.Equal(t, StatusFailed, ingest.Status)
	for _, s := range Stages[1:] {
		o, ok := res.Outcome(s)
		require.True(t, ok)
		assert.Equal(t, StatusSkipped, o.Status, s)
	}

	obs, _ := store.ListObservations(ctx, "dealer-a", 0)
	assert.Empty(t, obs)
	_, err = store.LatestBenchmark(ctx, "dealer-a")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
	assert.Equal(t, 0, res.Weights.Version)
}

func TestSpendFailureDegradesButReports(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("ledger timeout")}
	loop, _ := newTestLoop(t, testConfig(), &upwardSignals{entities: 3}, ledger)
	ctx := context.Background()

	var res *RunResult
	for w := 0; w < 4; w++ {
		var err error
		res, err = loop.Run(ctx, "dealer-a", week(w))
		require.NoError(t, err)
	}

	spend, _ := res.Outcome(StageOptimizeSpend)
	assert.Equal(t, StatusDegraded, spend.Status)
	assert.Contains(t, spend.Error, "ledger timeout")
	assert.Equal(t, int32(12), ledger.calls.Load(), "three attempts per run")

	require.NotNil(t, res.Benchmark)
	assert.False(t, res.Benchmark.Spend.Available)
	assert.False(t, res.Benchmark.Criteria.AdEfficiencyMet)
	assert.Contains(t, res.Benchmark.DegradedStages, string(StageOptimizeSpend))

	reinforce, _ := res.Outcome(StageReinforce)
	assert.Equal(t, StatusCompleted, reinforce.Status)
}

func TestIngestRetriesFlakySource(t *testing.T) {
	signals := &upwardSignals{entities: 2, failures: 2}
	loop, _ := newTestLoop(t, testConfig(), signals, nil)

	res, err := loop.Run(context.Background(), "dealer-a", week(0))

	require.NoError(t, err)
	assert.Equal(t, 3, signals.calls)
	assert.Contains(t, res.CompletedStages, string(StageIngest))
}

func TestIngestGivesUpAfterMaxAttempts(t *testing.T) {
	signals := &upwardSignals{entities: 2, failures: 5}
	loop, _ := newTestLoop(t, testConfig(), signals, nil)

	res, err := loop.Run(context.Background(), "dealer-a", week(0))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "signal api unavailable")
	assert.True(t, res.Aborted)
	assert.Equal(t, 3, signals.calls)
}

func TestLearnerTrainsOnceGateReached(t *testing.T) {
	cfg := testConfig()
	loop, store := newTestLoop(t, cfg, &upwardSignals{entities: 25, observed: true}, nil)
	ctx := context.Background()

	var res *RunResult
	for w := 0; w < 4; w++ {
		var err error
		res, err = loop.Run(ctx, "dealer-a", week(w))
		require.NoError(t, err)
		if w < 3 {
			assert.Nil(t, res.Training, "week %d is below the gate", w)
		}
	}

	require.NotNil(t, res.Training)
	assert.Equal(t, 100, res.Training.SampleCount)
	assert.Greater(t, res.Training.Confidence, 0.0)

	// the learner publishes first, then reinforcement steps from it
	reg, _ := loop.Registry(ctx, "dealer-a")
	history := reg.History()
	last := history[len(history)-1]
	assert.Equal(t, contracts.WeightSourceReinforce, last.Source)
	assert.Equal(t, contracts.WeightSourceLearner, history[len(history)-2].Source)

	samples, err := store.ListSamples(ctx, "dealer-a", 0)
	require.NoError(t, err)
	assert.Len(t, samples, 100)
}

func TestTenantStateRestoredFromStore(t *testing.T) {
	signals := &upwardSignals{entities: 3}
	loop, store := newTestLoop(t, testConfig(), signals, nil)
	ctx := context.Background()

	for w := 0; w < 4; w++ {
		_, err := loop.Run(ctx, "dealer-a", week(w))
		require.NoError(t, err)
	}
	reg, _ := loop.Registry(ctx, "dealer-a")
	want := reg.Current().Version
	require.Greater(t, want, 0)

	// a fresh loop over the same store resumes at the latest version
	fresh, err := NewLoop(testConfig(), Dependencies{
		Signals:   signals,
		Store:     store,
		Engine:    scoring.NewEngine(zerolog.Nop()),
		Extractor: features.NewExtractor(zerolog.Nop()),
	}, zerolog.Nop())
	require.NoError(t, err)

	restored, err := fresh.Registry(ctx, "dealer-a")
	require.NoError(t, err)
	assert.Equal(t, want, restored.Current().Version)
}

func TestRunAllIsolatesTenants(t *testing.T) {
	loop, _ := newTestLoop(t, testConfig(), &tenantSwitch{
		ok:     &upwardSignals{entities: 2},
		broken: "dealer-b",
	}, nil)

	results, err := loop.RunAll(context.Background(), []string{"dealer-a", "dealer-b", "dealer-c"}, week(0))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant dealer-b")
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Aborted)
	assert.True(t, results[2].Success)
}

func TestRepeatedWeekIsNotRecomputed(t *testing.T) {
	loop, store := newTestLoop(t, testConfig(), &upwardSignals{entities: 3, observed: true}, nil)
	ctx := context.Background()

	var broadcast atomic.Int32
	loop.OnBenchmark(func(rec contracts.BenchmarkRecord) { broadcast.Add(1) })

	var first *RunResult
	for w := 0; w < 4; w++ {
		res, err := loop.Run(ctx, "dealer-a", week(w))
		require.NoError(t, err)
		first = res
	}
	version := first.Weights.Version

	tests := []struct {
		name   string
		period time.Time
	}{
		{"same monday", week(3)},
		{"mid week", week(3).Add(50 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := loop.Run(ctx, "dealer-a", tt.period)
			require.NoError(t, err)

			assert.True(t, res.AlreadyDone)
			assert.True(t, res.Success)
			assert.Equal(t, week(3), res.Period)
			require.NotNil(t, res.Benchmark)
			assert.Equal(t, first.Benchmark.ID, res.Benchmark.ID)
			assert.Equal(t, version, res.Weights.Version)
			for _, s := range Stages {
				o, _ := res.Outcome(s)
				assert.Equal(t, StatusSkipped, o.Status, s)
			}
		})
	}

	obs, _ := store.ListObservations(ctx, "dealer-a", 0)
	assert.Len(t, obs, 4)
	points, _ := store.ListPoints(ctx, "dealer-a", 0)
	assert.Len(t, points, 4)
	benchmarks, _ := store.ListBenchmarks(ctx, "dealer-a", 0)
	assert.Len(t, benchmarks, 4)
	samples, _ := store.ListSamples(ctx, "dealer-a", 0)
	assert.Len(t, samples, 12)
	assert.Equal(t, int32(4), broadcast.Load())
}

// failingBenchmarks loses benchmark writes until fail is cleared
type failingBenchmarks struct {
	*memory.Store
	fail atomic.Bool
}

func (s *failingBenchmarks) SaveBenchmark(ctx context.Context, rec contracts.BenchmarkRecord) error {
	if s.fail.Load() {
		return errors.New("benchmark table unavailable")
	}
	return s.Store.SaveBenchmark(ctx, rec)
}

func TestRepeatedWeekWithoutBenchmarkReplacesIngest(t *testing.T) {
	store := &failingBenchmarks{Store: memory.New()}
	loop, err := NewLoop(testConfig(), Dependencies{
		Signals:   &upwardSignals{entities: 3, observed: true},
		Store:     store,
		Engine:    scoring.NewEngine(zerolog.Nop()),
		Extractor: features.NewExtractor(zerolog.Nop()),
	}, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	for w := 0; w < 2; w++ {
		_, err := loop.Run(ctx, "dealer-a", week(w))
		require.NoError(t, err)
	}

	// report fails, so week 2 is ingested but has no benchmark
	store.fail.Store(true)
	res, err := loop.Run(ctx, "dealer-a", week(2))
	require.NoError(t, err)
	assert.False(t, res.Success)

	store.fail.Store(false)
	res, err = loop.Run(ctx, "dealer-a", week(2))
	require.NoError(t, err)
	assert.False(t, res.AlreadyDone)
	assert.True(t, res.Success)

	obs, _ := store.ListObservations(ctx, "dealer-a", 0)
	require.Len(t, obs, 3)
	assert.Equal(t, week(2), obs[2].Period)
	points, _ := store.ListPoints(ctx, "dealer-a", 0)
	assert.Len(t, points, 3)
	samples, _ := store.ListSamples(ctx, "dealer-a", 0)
	assert.Len(t, samples, 9)

	lrn, err := loop.Learner(ctx, "dealer-a")
	require.NoError(t, err)
	assert.Equal(t, 9, lrn.Len())

	require.NotNil(t, res.Calibration)
	assert.Equal(t, 3, res.Calibration.WindowSize)
}

type brokenSamples struct {
	*memory.Store
}

func (brokenSamples) ListSamples(ctx context.Context, tenant string, limit int) ([]contracts.TrainingSample, error) {
	return nil, errors.New("samples table unavailable")
}

func TestStateRestoreFailureAbortsRun(t *testing.T) {
	loop, err := NewLoop(testConfig(), Dependencies{
		Signals:   &upwardSignals{entities: 2},
		Store:     brokenSamples{memory.New()},
		Engine:    scoring.NewEngine(zerolog.Nop()),
		Extractor: features.NewExtractor(zerolog.Nop()),
	}, zerolog.Nop())
	require.NoError(t, err)

	res, err := loop.Run(context.Background(), "dealer-a", week(0))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "samples table unavailable")
	require.NotNil(t, res)
	assert.True(t, res.Aborted)
	assert.False(t, res.Success)
	ingest, _ := res.Outcome(StageIngest)
	assert.Equal(t, StatusSkipped, ingest.Status)
}

type tenantSwitch struct {
	ok     contracts.SignalSource
	broken string
}

func (s *tenantSwitch) FetchSnapshots(ctx context.Context, tenant string, period time.Time) ([]contracts.EntitySnapshot, error) {
	if tenant == s.broken {
		return nil, contracts.ValidationError{Field: "tenant", Message: "unknown tenant"}
	}
	return s.ok.FetchSnapshots(ctx, tenant, period)
}

func TestRunTimeoutAbortsIngest(t *testing.T) {
	cfg := testConfig()
	cfg.RunTimeout = 20 * time.Millisecond
	loop, _ := newTestLoop(t, cfg, blockingSignals{}, nil)

	res, err := loop.Run(context.Background(), "dealer-a", week(0))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, res.Aborted)
}

type blockingSignals struct{}

func (blockingSignals) FetchSnapshots(ctx context.Context, tenant string, period time.Time) ([]contracts.EntitySnapshot, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestNewLoopRequiresDependencies(t *testing.T) {
	_, err := NewLoop(DefaultConfig(), Dependencies{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewLoop(DefaultConfig(), Dependencies{Store: memory.New()}, zerolog.Nop())
	assert.Error(t, err)
}
