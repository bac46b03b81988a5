// Package memory is an in-process implementation of every contracts store.
// Used by tests, the CLI one-shot commands and STORE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

// Store keeps tenant data in maps guarded by a single RWMutex.
// Values are copied on the way in and out.
type Store struct {
	mu sync.RWMutex

	weights      map[string][]contracts.WeightVector
	observations map[string][]contracts.PeriodObservation
	points       map[string][]contracts.TimeSeriesPoint
	benchmarks   map[string][]contracts.BenchmarkRecord
	scores       map[string]map[time.Time]map[string]contracts.ScoreResult
	samples      map[string][]contracts.TrainingSample
}

var _ contracts.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		weights:      make(map[string][]contracts.WeightVector),
		observations: make(map[string][]contracts.PeriodObservation),
		points:       make(map[string][]contracts.TimeSeriesPoint),
		benchmarks:   make(map[string][]contracts.BenchmarkRecord),
		scores:       make(map[string]map[time.Time]map[string]contracts.ScoreResult),
		samples:      make(map[string][]contracts.TrainingSample),
	}
}

// SaveWeightVector appends a version; an existing version number is rejected
func (s *Store) SaveWeightVector(ctx context.Context, w contracts.WeightVector) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.weights[w.Tenant] {
		if existing.Version == w.Version {
			return fmt.Errorf("weight version %d for %s already exists", w.Version, w.Tenant)
		}
	}
	w.Weights = contracts.CloneWeights(w.Weights)
	s.weights[w.Tenant] = append(s.weights[w.Tenant], w)
	return nil
}

// ListWeightVectors returns versions oldest first
func (s *Store) ListWeightVectors(ctx context.Context, tenant string) ([]contracts.WeightVector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contracts.WeightVector, len(s.weights[tenant]))
	for i, w := range s.weights[tenant] {
		w.Weights = contracts.CloneWeights(w.Weights)
		out[i] = w
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// AppendObservation stores the observation of one period, replacing an
// earlier one for the same period. Periods stay in ascending order.
func (s *Store) AppendObservation(ctx context.Context, obs contracts.PeriodObservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obs.Pillars = obs.Pillars.Clone()
	list := s.observations[obs.Tenant]
	i := sort.Search(len(list), func(i int) bool { return !list[i].Period.Before(obs.Period) })
	if i < len(list) && list[i].Period.Equal(obs.Period) {
		list[i] = obs
		return nil
	}
	s.observations[obs.Tenant] = slices.Insert(list, i, obs)
	return nil
}

// ListObservations returns up to limit most recent observations, oldest first
func (s *Store) ListObservations(ctx context.Context, tenant string, limit int) ([]contracts.PeriodObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	src := tail(len(s.observations[tenant]), limit)
	all := s.observations[tenant][src:]
	out := make([]contracts.PeriodObservation, len(all))
	for i, o := range all {
		o.Pillars = o.Pillars.Clone()
		out[i] = o
	}
	return out, nil
}

// AppendPoint stores the point of one week, replacing an earlier one
// with the same timestamp
func (s *Store) AppendPoint(ctx context.Context, tenant string, p contracts.TimeSeriesPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p.DerivedMetrics = cloneMetrics(p.DerivedMetrics)
	list := s.points[tenant]
	i := sort.Search(len(list), func(i int) bool { return !list[i].Timestamp.Before(p.Timestamp) })
	if i < len(list) && list[i].Timestamp.Equal(p.Timestamp) {
		list[i] = p
		return nil
	}
	s.points[tenant] = slices.Insert(list, i, p)
	return nil
}

// ListPoints returns up to limit most recent points, oldest first
func (s *Store) ListPoints(ctx context.Context, tenant string, limit int) ([]contracts.TimeSeriesPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.points[tenant][tail(len(s.points[tenant]), limit):]
	out := make([]contracts.TimeSeriesPoint, len(all))
	for i, p := range all {
		p.DerivedMetrics = cloneMetrics(p.DerivedMetrics)
		out[i] = p
	}
	return out, nil
}

// SaveBenchmark appends a benchmark record; a second record for the same
// period is rejected
func (s *Store) SaveBenchmark(ctx context.Context, rec contracts.BenchmarkRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.benchmarks[rec.Tenant] {
		if existing.Period.Equal(rec.Period) {
			return fmt.Errorf("benchmark for %s %s already exists", rec.Tenant, rec.Period.Format("2006-01-02"))
		}
	}
	s.benchmarks[rec.Tenant] = append(s.benchmarks[rec.Tenant], rec)
	return nil
}

// LatestBenchmark returns the newest record or ErrNotFound
func (s *Store) LatestBenchmark(ctx context.Context, tenant string) (*contracts.BenchmarkRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.benchmarks[tenant]
	if len(recs) == 0 {
		return nil, fmt.Errorf("benchmark for %s: %w", tenant, contracts.ErrNotFound)
	}
	latest := recs[len(recs)-1]
	return &latest, nil
}

// BenchmarkForPeriod returns the record of one period or ErrNotFound
func (s *Store) BenchmarkForPeriod(ctx context.Context, tenant string, period time.Time) (*contracts.BenchmarkRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.benchmarks[tenant] {
		if rec.Period.Equal(period) {
			found := rec
			return &found, nil
		}
	}
	return nil, fmt.Errorf("benchmark for %s %s: %w", tenant, period.Format("2006-01-02"), contracts.ErrNotFound)
}

// ListBenchmarks returns up to limit most recent records, oldest first
func (s *Store) ListBenchmarks(ctx context.Context, tenant string, limit int) ([]contracts.BenchmarkRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.benchmarks[tenant][tail(len(s.benchmarks[tenant]), limit):]
	out := make([]contracts.BenchmarkRecord, len(all))
	copy(out, all)
	return out, nil
}

// SaveScores stores the entity scores of one period, replacing a previous save
func (s *Store) SaveScores(ctx context.Context, tenant string, period time.Time, scores map[string]contracts.ScoreResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scores[tenant] == nil {
		s.scores[tenant] = make(map[time.Time]map[string]contracts.ScoreResult)
	}
	copied := make(map[string]contracts.ScoreResult, len(scores))
	for id, r := range scores {
		r.SubScores = r.SubScores.Clone()
		copied[id] = r
	}
	s.scores[tenant][period.UTC()] = copied
	return nil
}

// Scores returns the saved scores of one period
func (s *Store) Scores(tenant string, period time.Time) map[string]contracts.ScoreResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]contracts.ScoreResult)
	for id, r := range s.scores[tenant][period.UTC()] {
		out[id] = r
	}
	return out
}

// AppendSamples appends learner samples. A sample for an entity and
// timestamp already stored replaces the old one in place.
func (s *Store) AppendSamples(ctx context.Context, tenant string, samples []contracts.TrainingSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		sample.SubScores = sample.SubScores.Clone()
		i := slices.IndexFunc(s.samples[tenant], func(x contracts.TrainingSample) bool {
			return x.EntityID == sample.EntityID && x.Timestamp.Equal(sample.Timestamp)
		})
		if i >= 0 {
			s.samples[tenant][i] = sample
			continue
		}
		s.samples[tenant] = append(s.samples[tenant], sample)
	}
	return nil
}

// ListSamples returns up to limit most recent samples, oldest first
func (s *Store) ListSamples(ctx context.Context, tenant string, limit int) ([]contracts.TrainingSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.samples[tenant][tail(len(s.samples[tenant]), limit):]
	out := make([]contracts.TrainingSample, len(all))
	for i, sample := range all {
		sample.SubScores = sample.SubScores.Clone()
		out[i] = sample
	}
	return out, nil
}

// tail returns the start index of the last limit items; limit ≤ 0 means all
func tail(n, limit int) int {
	if limit <= 0 || limit >= n {
		return 0
	}
	return n - limit
}

func cloneMetrics(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
