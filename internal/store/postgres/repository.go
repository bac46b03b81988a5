// Package postgres implements the contracts stores on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

// Repository handles calibration data persistence
// ⭐ SSOT: 캘리브레이션 데이터 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

var _ contracts.Store = (*Repository)(nil)

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the tables when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// SaveWeightVector inserts a new version; (tenant, version) is unique
func (r *Repository) SaveWeightVector(ctx context.Context, w contracts.WeightVector) error {
	weightsJSON, err := json.Marshal(w.Weights)
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	fitJSON, err := json.Marshal(w.Fit)
	if err != nil {
		return fmt.Errorf("failed to marshal fit: %w", err)
	}

	query := `
		INSERT INTO dealerai.weight_vectors
			(id, tenant, version, weights, intercept, fit, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant, period) DO UPDATE SET
			pillars = EXCLUDED.pillars,
			composite = EXCLUDED.composite,
			outcome = EXCLUDED.outcome,
			secondary = EXCLUDED.secondary,
			completeness = EXCLUDED.completeness,
			entity_count = EXCLUDED.entity_count`

	_, err = r.pool.Exec(ctx, query,
		w.ID, w.Tenant, w.Version, weightsJSON, w.Intercept, fitJSON, string(w.Source), w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save weight vector: %w", err)
	}
	return nil
}

// ListWeightVectors returns versions oldest first
func (r *Repository) ListWeightVectors(ctx context.Context, tenant string) ([]contracts.WeightVector, error) {
	query := `
		SELECT id, tenant, version, weights, intercept, fit, source, created_at
		FROM dealerai.weight_vectors
		WHERE tenant = $1
		ORDER BY version`

	rows, err := r.pool.Query(ctx, query, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to query weight vectors: %w", err)
	}
	defer rows.Close()

	var out []contracts.WeightVector
	for rows.Next() {
		var (
			w           contracts.WeightVector
			weightsJSON []byte
			fitJSON     []byte
			source      string
		)
		if err := rows.Scan(&w.ID, &w.Tenant, &w.Version, &weightsJSON, &w.Intercept, &fitJSON, &source, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan weight vector: %w", err)
		}
		if err := json.Unmarshal(weightsJSON, &w.Weights); err != nil {
			return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
		}
		if err := json.Unmarshal(fitJSON, &w.Fit); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fit: %w", err)
		}
		w.Source = contracts.WeightSource(source)
		out = append(out, w)
	}
	return out, rows.Err()
}

// AppendObservation upserts the observation of one period
func (r *Repository) AppendObservation(ctx context.Context, obs contracts.PeriodObservation) error {
	pillarsJSON, err := json.Marshal(obs.Pillars)
	if err != nil {
		return fmt.Errorf("failed to marshal pillars: %w", err)
	}

	query := `
		INSERT INTO dealerai.period_observations
			(tenant, period, pillars, composite, outcome, secondary, completeness, entity_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant, period) DO UPDATE SET
			pillars = EXCLUDED.pillars,
			composite = EXCLUDED.composite,
			outcome = EXCLUDED.outcome,
			secondary = EXCLUDED.secondary,
			completeness = EXCLUDED.completeness,
			entity_count = EXCLUDED.entity_count`

	_, err = r.pool.Exec(ctx, query,
		obs.Tenant, obs.Period, pillarsJSON, obs.Composite, obs.Outcome,
		obs.Secondary, obs.Completeness, obs.EntityCount,
	)
	if err != nil {
		return fmt.Errorf("failed to append observation: %w", err)
	}
	return nil
}

// ListObservations returns up to limit most recent observations, oldest first
func (r *Repository) ListObservations(ctx context.Context, tenant string, limit int) ([]contracts.PeriodObservation, error) {
	query := `
		SELECT tenant, period, pillars, composite, outcome, secondary, completeness, entity_count
		FROM (
			SELECT * FROM dealerai.period_observations
			WHERE tenant = $1
			ORDER BY period DESC
			LIMIT $2
		) recent
		ORDER BY period`

	rows, err := r.pool.Query(ctx, query, tenant, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var out []contracts.PeriodObservation
	for rows.Next() {
		var (
			o           contracts.PeriodObservation
			pillarsJSON []byte
		)
		if err := rows.Scan(&o.Tenant, &o.Period, &pillarsJSON, &o.Composite, &o.Outcome,
			&o.Secondary, &o.Completeness, &o.EntityCount); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		if err := json.Unmarshal(pillarsJSON, &o.Pillars); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pillars: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// AppendPoint upserts the point of one week
func (r *Repository) AppendPoint(ctx context.Context, tenant string, p contracts.TimeSeriesPoint) error {
	derivedJSON, err := json.Marshal(p.DerivedMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal derived metrics: %w", err)
	}

	query := `
		INSERT INTO dealerai.timeseries_points (tenant, ts, raw_value, smoothed_value, derived)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant, ts) DO UPDATE SET
			raw_value = EXCLUDED.raw_value,
			smoothed_value = EXCLUDED.smoothed_value,
			derived = EXCLUDED.derived`

	if _, err := r.pool.Exec(ctx, query, tenant, p.Timestamp, p.RawValue, p.SmoothedValue, derivedJSON); err != nil {
		return fmt.Errorf("failed to append point: %w", err)
	}
	return nil
}

// ListPoints returns up to limit most recent points, oldest first
func (r *Repository) ListPoints(ctx context.Context, tenant string, limit int) ([]contracts.TimeSeriesPoint, error) {
	query := `
		SELECT ts, raw_value, smoothed_value, derived
		FROM (
			SELECT * FROM dealerai.timeseries_points
			WHERE tenant = $1
			ORDER BY ts DESC
			LIMIT $2
		) recent
		ORDER BY ts`

	rows, err := r.pool.Query(ctx, query, tenant, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	var out []contracts.TimeSeriesPoint
	for rows.Next() {
		var (
			p           contracts.TimeSeriesPoint
			derivedJSON []byte
		)
		if err := rows.Scan(&p.Timestamp, &p.RawValue, &p.SmoothedValue, &derivedJSON); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		if len(derivedJSON) > 0 {
			if err := json.Unmarshal(derivedJSON, &p.DerivedMetrics); err != nil {
				return nil, fmt.Errorf("failed to unmarshal derived metrics: %w", err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveBenchmark inserts an immutable benchmark record.
// A second record for the same period violates (tenant, period).
func (r *Repository) SaveBenchmark(ctx context.Context, rec contracts.BenchmarkRecord) error {
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal benchmark: %w", err)
	}

	query := `
		INSERT INTO dealerai.benchmarks (id, tenant, period, record, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.pool.Exec(ctx, query, rec.ID, rec.Tenant, rec.Period, recordJSON, rec.CreatedAt); err != nil {
		return fmt.Errorf("failed to save benchmark: %w", err)
	}
	return nil
}

// LatestBenchmark returns the newest record or ErrNotFound
func (r *Repository) LatestBenchmark(ctx context.Context, tenant string) (*contracts.BenchmarkRecord, error) {
	query := `
		SELECT record FROM dealerai.benchmarks
		WHERE tenant = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var recordJSON []byte
	err := r.pool.QueryRow(ctx, query, tenant).Scan(&recordJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("benchmark for %s: %w", tenant, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest benchmark: %w", err)
	}

	var rec contracts.BenchmarkRecord
	if err := json.Unmarshal(recordJSON, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal benchmark: %w", err)
	}
	return &rec, nil
}

// BenchmarkForPeriod returns the record of one period or ErrNotFound
func (r *Repository) BenchmarkForPeriod(ctx context.Context, tenant string, period time.Time) (*contracts.BenchmarkRecord, error) {
	query := `
		SELECT record FROM dealerai.benchmarks
		WHERE tenant = $1 AND period = $2`

	var recordJSON []byte
	err := r.pool.QueryRow(ctx, query, tenant, period).Scan(&recordJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("benchmark for %s %s: %w", tenant, period.Format("2006-01-02"), contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get benchmark: %w", err)
	}

	var rec contracts.BenchmarkRecord
	if err := json.Unmarshal(recordJSON, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal benchmark: %w", err)
	}
	return &rec, nil
}

// ListBenchmarks returns up to limit most recent records, oldest first
func (r *Repository) ListBenchmarks(ctx context.Context, tenant string, limit int) ([]contracts.BenchmarkRecord, error) {
	query := `
		SELECT record FROM (
			SELECT record, created_at FROM dealerai.benchmarks
			WHERE tenant = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, tenant, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmarks: %w", err)
	}
	defer rows.Close()

	var out []contracts.BenchmarkRecord
	for rows.Next() {
		var recordJSON []byte
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark: %w", err)
		}
		var rec contracts.BenchmarkRecord
		if err := json.Unmarshal(recordJSON, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal benchmark: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveScores upserts the entity scores of one period in a single batch
func (r *Repository) SaveScores(ctx context.Context, tenant string, period time.Time, scores map[string]contracts.ScoreResult) error {
	if len(scores) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO dealerai.entity_scores (tenant, period, entity_id, score, result)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant, period, entity_id) DO UPDATE SET
			score = EXCLUDED.score,
			result = EXCLUDED.result`

	for id, res := range scores {
		resultJSON, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("failed to marshal score for %s: %w", id, err)
		}
		batch.Queue(query, tenant, period, id, res.Score, resultJSON)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range scores {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to save scores: %w", err)
		}
	}
	return nil
}

// AppendSamples upserts learner samples in a single batch.
// One entity has at most one sample per week.
func (r *Repository) AppendSamples(ctx context.Context, tenant string, samples []contracts.TrainingSample) error {
	if len(samples) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO dealerai.training_samples (tenant, entity_id, sample, observed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant, entity_id, observed_at) DO UPDATE SET
			sample = EXCLUDED.sample`

	for _, s := range samples {
		sampleJSON, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal sample: %w", err)
		}
		batch.Queue(query, tenant, s.EntityID, sampleJSON, s.Timestamp)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range samples {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to append samples: %w", err)
		}
	}
	return nil
}

// ListSamples returns up to limit most recent samples, oldest first
func (r *Repository) ListSamples(ctx context.Context, tenant string, limit int) ([]contracts.TrainingSample, error) {
	query := `
		SELECT sample FROM (
			SELECT id, sample FROM dealerai.training_samples
			WHERE tenant = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, tenant, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []contracts.TrainingSample
	for rows.Next() {
		var sampleJSON []byte
		if err := rows.Scan(&sampleJSON); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		var s contracts.TrainingSample
		if err := json.Unmarshal(sampleJSON, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// limitArg maps "no limit" to NULL, which LIMIT treats as ALL
func limitArg(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}
