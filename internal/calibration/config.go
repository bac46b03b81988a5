package calibration

import (
	"time"

	"github.com/wonny/dealerai/backend/internal/learner"
	"github.com/wonny/dealerai/backend/pkg/config"
)

// MinWindowPeriods is the smallest window Calibrate will regress on
const MinWindowPeriods = 3

// Config holds loop settings
type Config struct {
	CompletenessThreshold float64       // Ingest abort threshold
	WindowPeriods         int           // rolling calibration window
	LearningRate          float64       // η for the reinforcement step
	ForecastHorizon       int           // Predict horizon (periods)
	ForecastLevel         float64       // interval confidence level
	HistoryPeriods        int           // series length fed to Predict
	PointsPerResult       float64       // score points one marketing result is worth
	ReallocationShare     float64       // share of a flagged channel's spend to move
	TrainingRetention     int           // learner samples kept after a fit
	RunTimeout            time.Duration // whole-run deadline
	MaxConcurrentTenants  int
	Retry                 RetryPolicy
	Learner               learner.Config
}

// DefaultConfig returns the default loop settings
func DefaultConfig() Config {
	return Config{
		CompletenessThreshold: 0.95,
		WindowPeriods:         8,
		LearningRate:          0.01,
		ForecastHorizon:       4,
		ForecastLevel:         0.95,
		HistoryPeriods:        52,
		PointsPerResult:       1.5,
		ReallocationShare:     0.3,
		TrainingRetention:     2000,
		RunTimeout:            10 * time.Minute,
		MaxConcurrentTenants:  4,
		Retry:                 DefaultRetryPolicy(),
		Learner:               learner.DefaultConfig(),
	}
}

// FromAppConfig maps the environment config onto loop settings
func FromAppConfig(c config.CalibrationConfig) Config {
	cfg := DefaultConfig()
	cfg.CompletenessThreshold = c.CompletenessThreshold
	cfg.WindowPeriods = c.WindowPeriods
	cfg.LearningRate = c.LearningRate
	cfg.ForecastHorizon = c.ForecastHorizon
	cfg.PointsPerResult = c.PointsPerResult
	cfg.ReallocationShare = c.ReallocationShare
	cfg.RunTimeout = c.RunTimeout
	cfg.MaxConcurrentTenants = c.MaxConcurrentTenants
	cfg.Learner.MinSamples = c.MinTrainingSamples
	cfg.Retry = RetryPolicy{
		MaxAttempts:  c.MaxAttempts,
		InitialDelay: c.RetryInitialDelay,
		MaxDelay:     c.RetryMaxDelay,
	}
	return cfg
}

// WeekOf returns 00:00 UTC of the Monday starting the week containing t
func WeekOf(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // 월요일 = 0
	return day.AddDate(0, 0, -offset)
}

// PreviousWeek returns 00:00 UTC of the Monday starting the week before t
func PreviousWeek(t time.Time) time.Time {
	return WeekOf(t).AddDate(0, 0, -7)
}
