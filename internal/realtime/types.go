package realtime

import (
	"time"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

// EventType names a stream message
type EventType string

const (
	EventBenchmark EventType = "benchmark"
	EventWelcome   EventType = "welcome"
)

// Event is one message on the benchmark stream
// ⭐ SSOT: 실시간 스트림 메시지 구조
type Event struct {
	Type      EventType                  `json:"type"`
	Tenant    string                     `json:"tenant,omitempty"`
	Benchmark *contracts.BenchmarkRecord `json:"benchmark,omitempty"`
	Timestamp time.Time                  `json:"timestamp"`
}

// BenchmarkEvent wraps a published record
func BenchmarkEvent(rec contracts.BenchmarkRecord) Event {
	return Event{
		Type:      EventBenchmark,
		Tenant:    rec.Tenant,
		Benchmark: &rec,
		Timestamp: rec.CreatedAt,
	}
}
