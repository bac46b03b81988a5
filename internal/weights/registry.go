package weights

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

// Registry is the versioned weight state of one tenant.
// Readers load "current" lock-free; publishers are serialized and append only.
// ⭐ SSOT: 테넌트별 가중치 버전 관리
type Registry struct {
	tenant  string
	store   contracts.WeightStore
	current atomic.Pointer[contracts.WeightVector]

	mu      sync.Mutex // guards history and publish ordering
	history []contracts.WeightVector

	now func() time.Time
	log zerolog.Logger
}

// NewRegistry starts at the default vector (version 0). store may be nil.
func NewRegistry(tenant string, store contracts.WeightStore, log zerolog.Logger) *Registry {
	r := &Registry{
		tenant: tenant,
		store:  store,
		now:    time.Now,
		log:    log.With().Str("component", "weights.registry").Str("tenant", tenant).Logger(),
	}
	initial := contracts.DefaultWeightVector(tenant)
	r.history = []contracts.WeightVector{initial}
	r.current.Store(&initial)
	return r
}

// WithClock overrides the timestamp source
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Restore loads persisted versions; the latest becomes current
func (r *Registry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	versions, err := r.store.ListWeightVectors(ctx, r.tenant)
	if err != nil {
		return fmt.Errorf("restore weight versions: %w", err)
	}
	if len(versions) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append([]contracts.WeightVector{contracts.DefaultWeightVector(r.tenant)}, versions...)
	latest := versions[len(versions)-1]
	r.current.Store(&latest)

	r.log.Info().Int("version", latest.Version).Msg("weight versions restored")
	return nil
}

// Current returns a copy of the current vector
func (r *Registry) Current() contracts.WeightVector {
	return clone(*r.current.Load())
}

// Publish normalizes weights, persists them as the next version and makes
// them current. A failed write creates no version.
func (r *Registry) Publish(ctx context.Context, raw map[contracts.SubScoreID]float64, intercept float64, fit contracts.FitStats, source contracts.WeightSource) (contracts.WeightVector, error) {
	normalized, ok := contracts.NormalizeWeights(raw)
	if !ok {
		return contracts.WeightVector{}, contracts.ValidationError{Field: "weights", Message: "no positive coefficient"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := contracts.WeightVector{
		ID:        uuid.NewString(),
		Tenant:    r.tenant,
		Version:   r.history[len(r.history)-1].Version + 1,
		Weights:   normalized,
		Intercept: intercept,
		Fit:       fit,
		Source:    source,
		CreatedAt: r.now(),
	}
	if err := next.Validate(); err != nil {
		return contracts.WeightVector{}, err
	}

	if r.store != nil {
		if err := r.store.SaveWeightVector(ctx, next); err != nil {
			return contracts.WeightVector{}, fmt.Errorf("persist weight version %d: %w", next.Version, err)
		}
	}

	r.history = append(r.history, next)
	published := clone(next)
	r.current.Store(&published)

	r.log.Info().
		Int("version", next.Version).
		Str("source", string(source)).
		Float64("r2", fit.R2).
		Msg("weight vector published")

	return clone(next), nil
}

// History returns every version, oldest first
func (r *Registry) History() []contracts.WeightVector {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]contracts.WeightVector, len(r.history))
	for i, v := range r.history {
		out[i] = clone(v)
	}
	return out
}

// Version returns one version by number
func (r *Registry) Version(v int) (contracts.WeightVector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.history {
		if w.Version == v {
			return clone(w), nil
		}
	}
	return contracts.WeightVector{}, fmt.Errorf("weight version %d: %w", v, contracts.ErrNotFound)
}

func clone(w contracts.WeightVector) contracts.WeightVector {
	w.Weights = contracts.CloneWeights(w.Weights)
	return w
}
