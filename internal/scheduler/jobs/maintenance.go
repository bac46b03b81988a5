package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/insights"
	"github.com/wonny/dealerai/backend/pkg/logger"
)

// ForecastWarmer computes (and caches) a tenant forecast
type ForecastWarmer interface {
	Forecast(ctx context.Context, tenant string, weeks int, level float64) (*insights.ForecastView, error)
}

// CacheWarmJob precomputes forecasts so API reads hit the cache
type CacheWarmJob struct {
	warmer   ForecastWarmer
	tenants  []string
	horizon  int
	schedule string
	logger   *logger.Logger
}

// NewCacheWarmJob creates a new cache warm job
func NewCacheWarmJob(warmer ForecastWarmer, tenants []string, horizon int, schedule string, log *logger.Logger) *CacheWarmJob {
	if schedule == "" {
		schedule = "0 30 * * * *" // 매시 30분
	}
	return &CacheWarmJob{
		warmer:   warmer,
		tenants:  append([]string(nil), tenants...),
		horizon:  horizon,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *CacheWarmJob) Name() string {
	return "cache_warm"
}

// Schedule returns the cron schedule
func (j *CacheWarmJob) Schedule() string {
	return j.schedule
}

// Run warms every tenant. Tenants without history are skipped.
func (j *CacheWarmJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled cache warm")

	warmed := 0
	var errs []error
	for _, tenant := range j.tenants {
		_, err := j.warmer.Forecast(ctx, tenant, j.horizon, 0)
		switch {
		case err == nil:
			warmed++
		case errors.Is(err, contracts.ErrNotFound):
		default:
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenant, err))
		}
	}

	if warmed > 0 {
		j.logger.WithField("warmed", warmed).Info("Cache warm completed")
	}
	return errors.Join(errs...)
}
