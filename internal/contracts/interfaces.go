package contracts

import (
	"context"
	"math"
	"time"
)

var posInf = math.Inf(1)

// SignalSource supplies per-entity raw signals and outcomes for a period
// ⭐ SSOT: 외부 신호 수집 인터페이스
type SignalSource interface {
	FetchSnapshots(ctx context.Context, tenant string, period time.Time) ([]EntitySnapshot, error)
}

// SpendLedger supplies marketing spend per channel for a period
type SpendLedger interface {
	FetchSpend(ctx context.Context, tenant string, period time.Time) ([]SpendChannel, error)
}

// ListingSource supplies VIN listings for an inventory page
type ListingSource interface {
	FetchListings(ctx context.Context, url string) ([]ListingRecord, error)
}

// WeightStore persists weight vector versions (append-only)
type WeightStore interface {
	SaveWeightVector(ctx context.Context, w WeightVector) error
	// ListWeightVectors returns versions oldest first
	ListWeightVectors(ctx context.Context, tenant string) ([]WeightVector, error)
}

// ObservationStore persists period observations, one per (tenant, period).
// Appending a period that already exists replaces it.
type ObservationStore interface {
	AppendObservation(ctx context.Context, obs PeriodObservation) error
	// ListObservations returns up to limit most recent periods, oldest first
	ListObservations(ctx context.Context, tenant string, limit int) ([]PeriodObservation, error)
}

// TimeSeriesStore persists the composite score series, one point per week
type TimeSeriesStore interface {
	AppendPoint(ctx context.Context, tenant string, p TimeSeriesPoint) error
	ListPoints(ctx context.Context, tenant string, limit int) ([]TimeSeriesPoint, error)
}

// BenchmarkStore persists benchmark records (append-only, one per period)
type BenchmarkStore interface {
	// SaveBenchmark fails when the period already has a record
	SaveBenchmark(ctx context.Context, rec BenchmarkRecord) error
	// BenchmarkForPeriod returns ErrNotFound when the period has none
	BenchmarkForPeriod(ctx context.Context, tenant string, period time.Time) (*BenchmarkRecord, error)
	// LatestBenchmark returns ErrNotFound when the tenant has none
	LatestBenchmark(ctx context.Context, tenant string) (*BenchmarkRecord, error)
	ListBenchmarks(ctx context.Context, tenant string, limit int) ([]BenchmarkRecord, error)
}

// ScoreStore persists per-entity score results
type ScoreStore interface {
	SaveScores(ctx context.Context, tenant string, period time.Time, scores map[string]ScoreResult) error
}

// TrainingSampleStore persists learner samples so buffers survive restarts.
// A sample with the same entity and timestamp replaces the stored one.
type TrainingSampleStore interface {
	AppendSamples(ctx context.Context, tenant string, samples []TrainingSample) error
	ListSamples(ctx context.Context, tenant string, limit int) ([]TrainingSample, error)
}

// Store is the full persistence surface used by the calibration loop
type Store interface {
	WeightStore
	ObservationStore
	TimeSeriesStore
	BenchmarkStore
	ScoreStore
	TrainingSampleStore
}
