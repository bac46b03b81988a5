package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/dealerai/backend/internal/calibration"
	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/scheduler"
	"github.com/wonny/dealerai/backend/pkg/logger"
)

// CalibrationRunner runs the weekly loop for a set of tenants
type CalibrationRunner interface {
	RunAll(ctx context.Context, tenants []string, period time.Time) ([]*calibration.RunResult, error)
}

// CacheInvalidator drops cached views of a tenant
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tenant string) error
}

// CalibrationJob runs the weekly calibration loop
// Schedule: Mondays 03:00, for the week that just ended
type CalibrationJob struct {
	runner   CalibrationRunner
	cache    CacheInvalidator
	tenants  []string
	schedule string
	now      func() time.Time
	logger   *logger.Logger
}

// NewCalibrationJob creates a new calibration job; cache may be nil
func NewCalibrationJob(runner CalibrationRunner, cache CacheInvalidator, tenants []string, schedule string, log *logger.Logger) *CalibrationJob {
	if schedule == "" {
		schedule = "0 0 3 * * MON"
	}
	return &CalibrationJob{
		runner:   runner,
		cache:    cache,
		tenants:  append([]string(nil), tenants...),
		schedule: schedule,
		now:      time.Now,
		logger:   log,
	}
}

// Name returns the job name
func (j *CalibrationJob) Name() string {
	return "weekly_calibration"
}

// Schedule returns the cron schedule
func (j *CalibrationJob) Schedule() string {
	return j.schedule
}

// Run executes the loop for every tenant. A tenant failure fails the job
// after the other tenants have run. When every failure is a data shortfall
// the error is permanent: a retry would see the same data.
func (j *CalibrationJob) Run(ctx context.Context) error {
	if len(j.tenants) == 0 {
		j.logger.Warn("No tenants configured, skipping calibration")
		return nil
	}

	period := calibration.PreviousWeek(j.now())
	j.logger.WithFields(map[string]interface{}{
		"tenants": len(j.tenants),
		"period":  period.Format("2006-01-02"),
	}).Info("Starting scheduled calibration")

	results, err := j.runner.RunAll(ctx, j.tenants, period)

	for _, r := range results {
		if r == nil {
			continue
		}
		j.logger.WithFields(map[string]interface{}{
			"tenant":          r.Tenant,
			"run_id":          r.RunID,
			"success":         r.Success,
			"already_done":    r.AlreadyDone,
			"degraded":        r.DegradedStages(),
			"weights_version": r.Weights.Version,
			"duration":        r.Duration,
		}).Info("Tenant calibration finished")

		if j.cache != nil && !r.Aborted && !r.AlreadyDone {
			if cerr := j.cache.Invalidate(ctx, r.Tenant); cerr != nil {
				j.logger.WithError(cerr).WithField("tenant", r.Tenant).Warn("Cache invalidation failed")
			}
		}
	}

	if err != nil {
		err = fmt.Errorf("calibration: %w", err)
		if onlyDataShortfalls(results) {
			return scheduler.Permanent(err)
		}
		return err
	}
	return nil
}

// onlyDataShortfalls reports whether at least one tenant failed and every
// failure was insufficient data
func onlyDataShortfalls(results []*calibration.RunResult) bool {
	failed := 0
	for _, r := range results {
		if r == nil || r.Error == nil {
			continue
		}
		if !errors.Is(r.Error, contracts.ErrInsufficientData) {
			return false
		}
		failed++
	}
	return failed > 0
}
