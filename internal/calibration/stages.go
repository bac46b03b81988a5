package calibration

import (
	"time"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/learner"
	"github.com/wonny/dealerai/backend/internal/timeseries"
)

// Stage names one step of the weekly loop
type Stage string

const (
	StageIngest        Stage = "ingest"
	StageCalibrate     Stage = "calibrate"
	StageReinforce     Stage = "reinforce"
	StagePredict       Stage = "predict"
	StageOptimizeSpend Stage = "optimize_spend"
	StageReport        Stage = "report"
)

// Stages is the fixed execution order
var Stages = []Stage{StageIngest, StageCalibrate, StageReinforce, StagePredict, StageOptimizeSpend, StageReport}

// StageStatus is the outcome of one stage
type StageStatus string

const (
	StatusCompleted StageStatus = "completed"
	StatusDegraded  StageStatus = "degraded"
	StatusSkipped   StageStatus = "skipped"
	StatusFailed    StageStatus = "failed"
)

// StageOutcome records how one stage went
type StageOutcome struct {
	Stage    Stage         `json:"stage"`
	Status   StageStatus   `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunResult holds everything one tenant run produced
type RunResult struct {
	RunID           string                        `json:"run_id"`
	Tenant          string                        `json:"tenant"`
	Period          time.Time                     `json:"period"`
	Success         bool                          `json:"success"` // Report ran
	Aborted         bool                          `json:"aborted"`
	AlreadyDone     bool                          `json:"already_done"` // period had a benchmark; nothing recomputed
	Error           error                         `json:"-"`
	Stages          []StageOutcome                `json:"stages"`
	CompletedStages []string                      `json:"completed_stages"`
	Observation     *contracts.PeriodObservation  `json:"observation,omitempty"`
	Ingest          *IngestReport                 `json:"ingest,omitempty"`
	Calibration     *contracts.CalibrationSummary `json:"calibration,omitempty"`
	Training        *learner.TrainingUpdate       `json:"training,omitempty"`
	Weights         contracts.WeightVector        `json:"weights"`
	Forecast        *timeseries.ForecastResult    `json:"forecast,omitempty"`
	Spend           *contracts.SpendSummary       `json:"spend,omitempty"`
	Reallocations   []Reallocation                `json:"reallocations,omitempty"`
	Benchmark       *contracts.BenchmarkRecord    `json:"benchmark,omitempty"`
	Duration        time.Duration                 `json:"duration"`
}

func (r *RunResult) skipAll(err error) {
	for _, s := range Stages {
		r.record(s, StatusSkipped, err, 0)
	}
}

// Outcome returns the recorded outcome of a stage
func (r *RunResult) Outcome(stage Stage) (StageOutcome, bool) {
	for _, o := range r.Stages {
		if o.Stage == stage {
			return o, true
		}
	}
	return StageOutcome{}, false
}

// DegradedStages lists stages that did not complete
func (r *RunResult) DegradedStages() []string {
	var out []string
	for _, o := range r.Stages {
		if o.Status == StatusDegraded || o.Status == StatusFailed {
			out = append(out, string(o.Stage))
		}
	}
	return out
}

func (r *RunResult) record(stage Stage, status StageStatus, err error, d time.Duration) {
	o := StageOutcome{Stage: stage, Status: status, Duration: d}
	if err != nil {
		o.Error = err.Error()
	}
	r.Stages = append(r.Stages, o)
	if status == StatusCompleted {
		r.CompletedStages = append(r.CompletedStages, string(stage))
	}
}
