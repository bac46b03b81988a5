package scoring

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

// Engine computes bounded composite scores. It holds no mutable state and
// is safe for concurrent use.
// ⭐ SSOT: 점수 계산은 여기서만
type Engine struct {
	cfg          Config
	policyHash   string
	penaltyRules []PenaltyRule
	floorRules   []FloorRule
	now          func() time.Time
	log          zerolog.Logger
}

// NewEngine creates an engine with the default policy
func NewEngine(log zerolog.Logger) *Engine {
	engine, _ := NewEngineWithConfig(DefaultConfig(), log)
	return engine
}

// NewEngineWithConfig creates an engine with a validated policy
func NewEngineWithConfig(cfg Config, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:          cfg,
		policyHash:   cfg.Hash(),
		penaltyRules: DefaultPenaltyRules(),
		floorRules:   DefaultFloorRules(),
		now:          time.Now,
		log:          log.With().Str("component", "scoring.engine").Logger(),
	}, nil
}

// WithClock overrides the timestamp source
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Config returns the active policy
func (e *Engine) Config() Config {
	return e.cfg
}

// Score validates raw features and scores them. A missing field fails the
// whole call with *contracts.MissingFieldError; no partial result is returned.
// nil weights use the default vector.
func (e *Engine) Score(raw contracts.RawFeatures, weights *contracts.WeightVector) (*contracts.ScoreResult, error) {
	bundle, err := raw.Bundle()
	if err != nil {
		return nil, err
	}
	return e.ScoreBundle(bundle, weights)
}

// ScoreBundle scores an already validated bundle
func (e *Engine) ScoreBundle(b contracts.FeatureBundle, weights *contracts.WeightVector) (*contracts.ScoreResult, error) {
	w := contracts.DefaultWeightVector("")
	if weights != nil {
		w = *weights
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	subs := e.SubScores(b)
	in := RuleInput{Bundle: b, SubScores: subs}

	composite := 0.0
	for _, id := range contracts.AllSubScores {
		composite += w.Get(id) * subs[id]
	}
	composite = clampScore(composite)

	// 1. 페널티 (순서 고정)
	var penalties contracts.PenaltySet
	var warnings []string
	for _, rule := range e.penaltyRules {
		amount, warning := rule.Eval(in, e.cfg)
		setPenalty(&penalties, rule.Key, clamp(amount, 0, 100))
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}
	score := clampScore(composite - penalties.Total())

	// 2. 플로어
	floorApplied := false
	for _, rule := range e.floorRules {
		capped, warning := rule.Apply(score, in, e.cfg)
		capped = clampScore(capped)
		if capped < score {
			floorApplied = true
		}
		score = capped
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}

	if len(warnings) > 0 {
		e.log.Debug().
			Strs("warnings", warnings).
			Float64("score", score).
			Msg("score computed with warnings")
	}

	return &contracts.ScoreResult{
		Score:     score,
		SubScores: subs,
		Penalties: penalties,
		Warnings:  warnings,
		Metadata: contracts.ScoreMetadata{
			EngineVersion:  e.cfg.Version,
			PolicyHash:     e.policyHash,
			WeightsVersion: w.Version,
			ComputedAt:     e.now(),
			RawComposite:   composite,
			FloorApplied:   floorApplied,
			Warnings:       append([]string(nil), warnings...),
		},
	}, nil
}
