package logger_test

import (
	"errors"

	"github.com/wonny/dealerai/backend/pkg/config"
	"github.com/wonny/dealerai/backend/pkg/logger"
)

// Example_withFields demonstrates structured logging with fields
func Example_withFields() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	log := logger.New(cfg)

	log.WithField("tenant", "dealer-a").Info("Calibration scheduled")

	log.WithFields(map[string]interface{}{
		"tenant":  "dealer-a",
		"version": 4,
		"source":  "reinforce",
	}).Info("Weight vector published")
}

// Example_withError demonstrates error logging
func Example_withError() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "error",
		LogFormat: "json",
	}

	log := logger.New(cfg)

	err := errors.New("spend ledger unavailable")
	log.WithError(err).
		WithField("stage", "optimize_spend").
		Error("Stage degraded")
}
