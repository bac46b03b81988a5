package calibration

import (
	"context"
	"fmt"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/internal/features"
	"github.com/wonny/dealerai/backend/internal/timeseries"
)

// EntityIssue explains why an entity was not scored
type EntityIssue struct {
	EntityID string `json:"entity_id"`
	Reason   string `json:"reason"`
}

// IngestReport summarizes the Ingest stage
type IngestReport struct {
	Entities       int           `json:"entities"`
	Scored         int           `json:"scored"`
	Completeness   float64       `json:"completeness"`
	MeanConfidence float64       `json:"mean_confidence"`
	Samples        int           `json:"training_samples"`
	Issues         []EntityIssue `json:"issues,omitempty"`
}

// ingest fetches snapshots, extracts and scores every entity, then appends
// one observation and one series point for the period.
func (r *runContext) ingest(ctx context.Context) error {
	deps := r.loop.deps
	cfg := r.loop.cfg

	var snapshots []contracts.EntitySnapshot
	err := cfg.Retry.Do(ctx, r.log, "fetch_snapshots", func(ctx context.Context) error {
		var err error
		snapshots, err = deps.Signals.FetchSnapshots(ctx, r.tenant, r.period)
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		return &contracts.InsufficientDataError{Stage: string(StageIngest), What: "entities", Have: 0, Need: 1}
	}

	weights := r.state.registry.Current()
	report := &IngestReport{Entities: len(snapshots)}
	scores := make(map[string]contracts.ScoreResult, len(snapshots))
	pillarSums := make(map[contracts.SubScoreID]float64, len(contracts.AllSubScores))
	var (
		samples                   []contracts.TrainingSample
		completeness, confidence  float64
		composite, outcome, leads float64
	)

	for _, snap := range snapshots {
		outcome += snap.Outcome
		leads += snap.Secondary

		listings := r.listingsFor(ctx, snap)
		ext, err := deps.Extractor.Extract(snap.Raw, listings, features.Metadata{
			Source:      snap.Source,
			CollectedAt: snap.CollectedAt,
			Now:         r.loop.now(),
		})
		if err != nil {
			// structurally broken payloads count as empty
			report.Issues = append(report.Issues, EntityIssue{EntityID: snap.EntityID, Reason: err.Error()})
			continue
		}
		completeness += ext.Completeness
		confidence += ext.Confidence

		res, err := deps.Engine.Score(ext.Features, &weights)
		deps.Metrics.ObserveScore(scoreOf(res), err)
		if err != nil {
			report.Issues = append(report.Issues, EntityIssue{EntityID: snap.EntityID, Reason: err.Error()})
			continue
		}

		scores[snap.EntityID] = *res
		composite += res.Score
		for _, id := range contracts.AllSubScores {
			pillarSums[id] += res.SubScores[id]
		}

		if snap.ObservedScore != nil {
			bundle, _ := ext.Features.Bundle()
			samples = append(samples, contracts.TrainingSample{
				EntityID:    snap.EntityID,
				Features:    bundle,
				SubScores:   res.SubScores.Clone(),
				ActualScore: *snap.ObservedScore,
				Timestamp:   r.period,
			})
		}
	}

	n := float64(len(snapshots))
	report.Completeness = completeness / n
	report.MeanConfidence = confidence / n
	report.Scored = len(scores)
	r.result.Ingest = report
	deps.Metrics.SetCompleteness(r.tenant, report.Completeness)

	if report.Completeness < cfg.CompletenessThreshold {
		return &contracts.InsufficientDataError{
			Stage: string(StageIngest),
			What:  "feature completeness",
			Have:  report.Completeness,
			Need:  cfg.CompletenessThreshold,
		}
	}
	if len(scores) == 0 {
		return &contracts.InsufficientDataError{Stage: string(StageIngest), What: "scored entities", Have: 0, Need: 1}
	}

	scored := float64(len(scores))
	pillars := make(contracts.SubScoreSet, len(contracts.AllSubScores))
	for _, id := range contracts.AllSubScores {
		pillars[id] = pillarSums[id] / scored
	}
	obs := contracts.PeriodObservation{
		Tenant:       r.tenant,
		Period:       r.period,
		Pillars:      pillars,
		Composite:    composite / scored,
		Outcome:      outcome,
		Secondary:    leads,
		Completeness: report.Completeness,
		EntityCount:  len(scores),
	}

	if err := r.persistIngest(ctx, obs, scores, samples); err != nil {
		return err
	}

	// a week ingested before without a benchmark replaces its samples
	if dropped := r.state.learner.Forget(r.period); dropped > 0 {
		r.log.Info().Int("dropped", dropped).Msg("replacing training samples of a repeated week")
	}
	for _, s := range samples {
		if err := r.state.learner.AddTrainingData(s); err != nil {
			r.log.Warn().Err(err).Str("entity_id", s.EntityID).Msg("training sample rejected")
			continue
		}
		report.Samples++
	}

	r.result.Observation = &obs
	return nil
}

// persistIngest writes scores, samples, the observation and the series point
func (r *runContext) persistIngest(ctx context.Context, obs contracts.PeriodObservation, scores map[string]contracts.ScoreResult, samples []contracts.TrainingSample) error {
	store := r.loop.deps.Store
	retry := r.loop.cfg.Retry

	if err := retry.Do(ctx, r.log, "save_scores", func(ctx context.Context) error {
		return store.SaveScores(ctx, r.tenant, r.period, scores)
	}); err != nil {
		return fmt.Errorf("save scores: %w", err)
	}

	if len(samples) > 0 {
		if err := retry.Do(ctx, r.log, "append_samples", func(ctx context.Context) error {
			return store.AppendSamples(ctx, r.tenant, samples)
		}); err != nil {
			return fmt.Errorf("append samples: %w", err)
		}
	}

	if err := retry.Do(ctx, r.log, "append_observation", func(ctx context.Context) error {
		return store.AppendObservation(ctx, obs)
	}); err != nil {
		return fmt.Errorf("append observation: %w", err)
	}

	history, err := store.ListPoints(ctx, r.tenant, r.loop.cfg.HistoryPeriods)
	if err != nil {
		return fmt.Errorf("list series: %w", err)
	}
	// only weeks before this one feed the filter; a repeated week replaces its point
	earlier := history[:0]
	for _, p := range history {
		if p.Timestamp.Before(r.period) {
			earlier = append(earlier, p)
		}
	}
	raw := append(contracts.RawValues(earlier), obs.Composite)
	smoothed := timeseries.Smooth(raw, timeseries.DefaultKalman())

	point := contracts.TimeSeriesPoint{
		Timestamp:     r.period,
		RawValue:      obs.Composite,
		SmoothedValue: smoothed[len(smoothed)-1],
		DerivedMetrics: map[string]float64{
			"completeness": obs.Completeness,
			"outcome":      obs.Outcome,
			"secondary":    obs.Secondary,
			"entities":     float64(obs.EntityCount),
		},
	}
	if err := retry.Do(ctx, r.log, "append_point", func(ctx context.Context) error {
		return store.AppendPoint(ctx, r.tenant, point)
	}); err != nil {
		return fmt.Errorf("append point: %w", err)
	}
	return nil
}

// listingsFor returns inline listings, or scrapes the inventory page when
// only a URL was supplied. Scrape failures leave the entity without listings.
func (r *runContext) listingsFor(ctx context.Context, snap contracts.EntitySnapshot) []contracts.ListingRecord {
	if len(snap.Listings) > 0 || snap.ListingsURL == "" || r.loop.deps.Listings == nil {
		return snap.Listings
	}

	listings, err := r.loop.deps.Listings.FetchListings(ctx, snap.ListingsURL)
	if err != nil {
		r.log.Warn().Err(err).Str("entity_id", snap.EntityID).Msg("listing scrape failed")
		return nil
	}
	return listings
}

func scoreOf(res *contracts.ScoreResult) float64 {
	if res == nil {
		return 0
	}
	return res.Score
}
