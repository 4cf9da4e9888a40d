package matching

import "matchcore/internal/domain"

// PersistenceSink is the narrow interface the matching engine needs
// from internal/persistence: a non-blocking, bounded enqueue of
// durable-write candidates. Implementations must never block the
// caller — the matcher holds the book lock while calling this.
type PersistenceSink interface {
	EnqueueOrder(o domain.Order) bool
	EnqueueTrade(t domain.Trade) bool
}

// BroadcastSink is the narrow interface the matching engine needs from
// internal/broadcast: non-blocking trade publication and a book-dirty
// signal for the coalesced market-data worker.
type BroadcastSink interface {
	PublishTrade(t domain.Trade) bool
	MarkBookDirty()
}

// LatencyRecorder is the narrow interface internal/telemetry satisfies
// for per-order latency sampling.
type LatencyRecorder interface {
	RecordOrderLatency(millis float64)
	RecordOrder()
	RecordTrade()
}

// noopPersistenceSink/noopBroadcastSink/noopLatencyRecorder let tests
// construct an Engine without wiring every collaborator.
type noopPersistenceSink struct{}

func (noopPersistenceSink) EnqueueOrder(domain.Order) bool { return true }
func (noopPersistenceSink) EnqueueTrade(domain.Trade) bool { return true }

type noopBroadcastSink struct{}

func (noopBroadcastSink) PublishTrade(domain.Trade) bool { return true }
func (noopBroadcastSink) MarkBookDirty()                 {}

type noopLatencyRecorder struct{}

func (noopLatencyRecorder) RecordOrderLatency(float64) {}
func (noopLatencyRecorder) RecordOrder()               {}
func (noopLatencyRecorder) RecordTrade()                {}
