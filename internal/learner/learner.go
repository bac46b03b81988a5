package learner

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/weights"
)

// Config holds learner settings
type Config struct {
	MinSamples int     // 학습 최소 샘플 수
	Lambda     float64 // ridge penalty
	MaxBuffer  int     // oldest samples are dropped beyond this
}

// DefaultConfig returns the default learner settings
func DefaultConfig() Config {
	return Config{
		MinSamples: 100,
		Lambda:     1.0,
		MaxBuffer:  5000,
	}
}

// TrainingUpdate describes one successful fit
type TrainingUpdate struct {
	Vector       contracts.WeightVector           `json:"vector"`
	Coefficients map[contracts.SubScoreID]float64 `json:"coefficients"`
	R2           float64                          `json:"r2"`
	RMSE         float64                          `json:"rmse"`
	Confidence   float64                          `json:"confidence"`
	SampleCount  int                              `json:"sample_count"`
	FellBack     bool                             `json:"fell_back"`
}

// Learner buffers training samples and refits sub-score weights.
// AddTrainingData never waits on a running fit.
// ⭐ SSOT: 가중치 학습
type Learner struct {
	cfg      Config
	registry *weights.Registry

	mu     sync.Mutex // guards buffer
	buffer []contracts.TrainingSample

	fitMu sync.Mutex // one fit at a time

	log zerolog.Logger
}

// New creates a learner publishing into registry
func New(registry *weights.Registry, log zerolog.Logger) *Learner {
	return NewWithConfig(DefaultConfig(), registry, log)
}

// NewWithConfig creates a learner with custom config
func NewWithConfig(cfg Config, registry *weights.Registry, log zerolog.Logger) *Learner {
	return &Learner{
		cfg:      cfg,
		registry: registry,
		log:      log.With().Str("component", "learner").Logger(),
	}
}

// AddTrainingData appends a well-formed sample
func (l *Learner) AddTrainingData(sample contracts.TrainingSample) error {
	if err := validateSample(sample); err != nil {
		return err
	}

	sample.SubScores = sample.SubScores.Clone()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, sample)
	if l.cfg.MaxBuffer > 0 && len(l.buffer) > l.cfg.MaxBuffer {
		drop := len(l.buffer) - l.cfg.MaxBuffer
		l.buffer = append([]contracts.TrainingSample(nil), l.buffer[drop:]...)
	}
	return nil
}

// Len returns the buffered sample count
func (l *Learner) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}

// Seed restores a persisted buffer; malformed samples are skipped
func (l *Learner) Seed(samples []contracts.TrainingSample) int {
	added := 0
	for _, s := range samples {
		if err := l.AddTrainingData(s); err == nil {
			added++
		}
	}
	return added
}

// Forget drops buffered samples observed at ts and returns how many.
// A period that is ingested again replaces its samples instead of doubling them.
func (l *Learner) Forget(ts time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.buffer[:0]
	for _, s := range l.buffer {
		if !s.Timestamp.Equal(ts) {
			kept = append(kept, s)
		}
	}
	dropped := len(l.buffer) - len(kept)
	clear(l.buffer[len(kept):])
	l.buffer = kept
	return dropped
}

// Trim keeps only the newest keep samples
func (l *Learner) Trim(keep int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	if len(l.buffer) > keep {
		l.buffer = append([]contracts.TrainingSample(nil), l.buffer[len(l.buffer)-keep:]...)
	}
}

// Ready reports whether the minimum-sample gate is met
func (l *Learner) Ready() bool {
	return l.Len() >= l.cfg.MinSamples
}

// TrainModel fits weights on a snapshot of the buffer and publishes them.
// Below the minimum sample count it returns *contracts.InsufficientDataError
// and leaves the current weights untouched.
func (l *Learner) TrainModel(ctx context.Context) (*TrainingUpdate, error) {
	l.fitMu.Lock()
	defer l.fitMu.Unlock()

	l.mu.Lock()
	snapshot := make([]contracts.TrainingSample, len(l.buffer))
	copy(snapshot, l.buffer)
	l.mu.Unlock()

	if len(snapshot) < l.cfg.MinSamples {
		return nil, &contracts.InsufficientDataError{
			Stage: "learner",
			What:  "training data",
			Have:  float64(len(snapshot)),
			Need:  float64(l.cfg.MinSamples),
		}
	}

	fit, err := ridge(snapshot, l.cfg.Lambda)
	if err != nil {
		return nil, fmt.Errorf("fit weights: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	update := &TrainingUpdate{
		Coefficients: fit.coefficients,
		R2:           fit.r2,
		RMSE:         fit.rmse,
		SampleCount:  len(snapshot),
		Confidence:   l.confidence(len(snapshot), fit.r2),
	}

	raw := fit.coefficients
	if _, ok := contracts.NormalizeWeights(raw); !ok {
		// nothing positive: keep the prior shape, record the new fit
		raw = l.registry.Current().Weights
		update.FellBack = true
	}

	vector, err := l.registry.Publish(ctx, raw, fit.intercept, contracts.FitStats{
		R2:          fit.r2,
		RMSE:        fit.rmse,
		SampleCount: len(snapshot),
		Confidence:  update.Confidence,
	}, contracts.WeightSourceLearner)
	if err != nil {
		return nil, err
	}
	update.Vector = vector

	l.log.Info().
		Int("samples", len(snapshot)).
		Float64("r2", fit.r2).
		Float64("confidence", update.Confidence).
		Int("version", vector.Version).
		Msg("weights retrained")

	return update, nil
}

// confidence grows with data volume and fit quality; always > 0 past the gate
func (l *Learner) confidence(n int, r2 float64) float64 {
	volume := math.Min(1, float64(n)/float64(2*l.cfg.MinSamples))
	return volume * (0.5 + 0.5*r2)
}

func validateSample(s contracts.TrainingSample) error {
	if math.IsNaN(s.ActualScore) || math.IsInf(s.ActualScore, 0) || s.ActualScore < 0 || s.ActualScore > 100 {
		return contracts.ValidationError{Field: "actual_score", Message: "must be finite and within [0, 100]"}
	}
	for _, id := range contracts.AllSubScores {
		v, ok := s.SubScores[id]
		if !ok {
			return contracts.ValidationError{Field: "sub_scores." + string(id), Message: "required"}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 100 {
			return contracts.ValidationError{Field: "sub_scores." + string(id), Message: "must be finite and within [0, 100]"}
		}
	}
	return nil
}
