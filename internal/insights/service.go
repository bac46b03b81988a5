// Package insights serves read-side views of the calibration data: history
// analysis and forecasts, cached in Redis when it is enabled.
package insights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/timeseries"
	"github.com/wonny/dealerai/backend/pkg/redis"
)

// Lookback bounds (weeks)
const (
	MinHistoryWeeks     = 1
	MaxHistoryWeeks     = 52
	DefaultHistoryWeeks = 8
)

// WeightsProvider resolves a tenant's current weight vector
type WeightsProvider interface {
	CurrentWeights(ctx context.Context, tenant string) (contracts.WeightVector, error)
}

// Store is the read surface insights needs
type Store interface {
	contracts.TimeSeriesStore
	contracts.BenchmarkStore
}

// HistoryOptions selects what a history view includes
type HistoryOptions struct {
	Weeks     int
	Smoothing bool
	Analysis  bool
}

// DataQuality describes the points behind a view
type DataQuality struct {
	TotalPoints      int       `json:"total_points"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	WeeksCovered     int       `json:"weeks_covered"`
	Completeness     float64   `json:"completeness"`
	SmoothingApplied bool      `json:"smoothing_applied"`
}

// ModelPerformance is the fit of the latest benchmark
type ModelPerformance struct {
	R2             float64   `json:"r2"`
	RMSE           float64   `json:"rmse"`
	Elasticity     float64   `json:"elasticity"`
	LastEvaluation time.Time `json:"last_evaluation"`
}

// ModelContext is the model state a view was computed under
type ModelContext struct {
	Weights     contracts.WeightVector `json:"weights"`
	Performance *ModelPerformance      `json:"performance,omitempty"`
}

// HistoryView is the response of a history query
type HistoryView struct {
	Tenant      string                      `json:"tenant"`
	Series      []contracts.TimeSeriesPoint `json:"time_series"`
	Summary     timeseries.Summary          `json:"summary_statistics"`
	Analysis    *timeseries.Analysis        `json:"trend_analysis,omitempty"`
	DataQuality DataQuality                 `json:"data_quality"`
	Model       ModelContext                `json:"model_context"`
}

// ForecastView is the response of a forecast query
type ForecastView struct {
	Tenant         string                     `json:"tenant"`
	Forecast       *timeseries.ForecastResult `json:"forecast"`
	Trend          timeseries.TrendResult     `json:"trend"`
	ProjectedGain  float64                    `json:"projected_outcome_gain"`
	WeightsVersion int                        `json:"weights_version"`
	GeneratedAt    time.Time                  `json:"generated_at"`
}

// Service builds history and forecast views
// ⭐ SSOT: 조회용 분석 뷰는 여기서만
type Service struct {
	store   Store
	weights WeightsProvider
	cache   *redis.Cache
	now     func() time.Time
	log     zerolog.Logger
}

// NewService creates a service; cache may be nil
func NewService(store Store, weights WeightsProvider, cache *redis.Cache, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		weights: weights,
		cache:   cache,
		now:     time.Now,
		log:     log.With().Str("component", "insights").Logger(),
	}
}

// History returns the smoothed series with summary statistics
func (s *Service) History(ctx context.Context, tenant string, opts HistoryOptions) (*HistoryView, error) {
	if opts.Weeks < MinHistoryWeeks || opts.Weeks > MaxHistoryWeeks {
		return nil, contracts.ValidationError{
			Field:   "weeks",
			Message: fmt.Sprintf("must be between %d and %d", MinHistoryWeeks, MaxHistoryWeeks),
		}
	}

	key := fmt.Sprintf("%s:s%t:a%t", redis.HistoryKey(tenant, opts.Weeks), opts.Smoothing, opts.Analysis)
	var cached HistoryView
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	points, err := s.store.ListPoints(ctx, tenant, opts.Weeks)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("history for %s: %w", tenant, contracts.ErrNotFound)
	}

	view := &HistoryView{Tenant: tenant, Series: points}
	values := contracts.RawValues(points)

	// 원본과 같이 4점 이상일 때만 평활
	if opts.Smoothing && len(points) > 3 {
		view.Series = timeseries.SmoothPoints(points, timeseries.DefaultKalman())
		view.DataQuality.SmoothingApplied = true
		values = smoothedValues(view.Series)
	}
	view.Summary = timeseries.Summarize(values)

	if opts.Analysis {
		outcomes := derived(points, "outcome")
		if len(outcomes) != len(points) {
			outcomes = nil
		}
		analysis, err := timeseries.Analyze(contracts.RawValues(points), outcomes)
		if err != nil {
			return nil, fmt.Errorf("analyze history: %w", err)
		}
		view.Analysis = analysis
	}

	view.DataQuality.TotalPoints = len(points)
	view.DataQuality.Start = points[0].Timestamp
	view.DataQuality.End = points[len(points)-1].Timestamp
	view.DataQuality.WeeksCovered = opts.Weeks
	view.DataQuality.Completeness = mean(derived(points, "completeness"))

	model, err := s.modelContext(ctx, tenant)
	if err != nil {
		return nil, err
	}
	view.Model = model

	s.cacheSet(ctx, key, view, redis.TTLMedium)
	return view, nil
}

// Forecast projects the composite series weeks ahead at the given level
func (s *Service) Forecast(ctx context.Context, tenant string, weeks int, level float64) (*ForecastView, error) {
	if weeks < timeseries.MinHorizon || weeks > timeseries.MaxHorizon {
		return nil, contracts.ValidationError{
			Field:   "weeks",
			Message: fmt.Sprintf("must be between %d and %d", timeseries.MinHorizon, timeseries.MaxHorizon),
		}
	}
	if level == 0 {
		level = 0.95
	}

	key := fmt.Sprintf("%s:%.2f", redis.ForecastKey(tenant, weeks), level)
	var cached ForecastView
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	points, err := s.store.ListPoints(ctx, tenant, MaxHistoryWeeks)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("series for %s: %w", tenant, contracts.ErrNotFound)
	}

	values := contracts.RawValues(points)
	fc, err := timeseries.Forecast(values, weeks, level)
	if err != nil {
		return nil, err
	}

	model, err := s.modelContext(ctx, tenant)
	if err != nil {
		return nil, err
	}

	view := &ForecastView{
		Tenant:         tenant,
		Forecast:       fc,
		Trend:          timeseries.AnalyzeTrend(values),
		WeightsVersion: model.Weights.Version,
		GeneratedAt:    s.now(),
	}
	if model.Performance != nil {
		smoothed := timeseries.Smooth(values, timeseries.DefaultKalman())
		view.ProjectedGain = (fc.Final() - smoothed[len(smoothed)-1]) * model.Performance.Elasticity
	}

	s.cacheSet(ctx, key, view, redis.TTLMedium)
	return view, nil
}

// Benchmarks lists the most recent benchmark records, oldest first
func (s *Service) Benchmarks(ctx context.Context, tenant string, limit int) ([]contracts.BenchmarkRecord, error) {
	key := redis.BenchmarksKey(tenant, limit)
	var cached []contracts.BenchmarkRecord
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	recs, err := s.store.ListBenchmarks(ctx, tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("list benchmarks: %w", err)
	}
	s.cacheSet(ctx, key, recs, redis.TTLLong)
	return recs, nil
}

// Invalidate drops every cached view of a tenant
func (s *Service) Invalidate(ctx context.Context, tenant string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeleteTenant(ctx, tenant)
}

func (s *Service) modelContext(ctx context.Context, tenant string) (ModelContext, error) {
	var mc ModelContext

	w, err := s.weights.CurrentWeights(ctx, tenant)
	if err != nil {
		return mc, fmt.Errorf("current weights: %w", err)
	}
	mc.Weights = w

	latest, err := s.store.LatestBenchmark(ctx, tenant)
	switch {
	case errors.Is(err, contracts.ErrNotFound):
	case err != nil:
		return mc, fmt.Errorf("latest benchmark: %w", err)
	default:
		mc.Performance = &ModelPerformance{
			R2:             latest.Calibration.R2,
			RMSE:           latest.Calibration.RMSE,
			Elasticity:     latest.Calibration.Elasticity,
			LastEvaluation: latest.CreatedAt,
		}
	}
	return mc, nil
}

// cache failures never fail a read
func (s *Service) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	found, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false
	}
	return found
}

func (s *Service) cacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func smoothedValues(points []contracts.TimeSeriesPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.SmoothedValue
	}
	return out
}

func derived(points []contracts.TimeSeriesPoint, name string) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		if v, ok := p.DerivedMetrics[name]; ok {
			out = append(out, v)
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}
