// Package stats holds the monotonic counters shared between the ingestion
// pipeline and the HTTP handlers, per spec.md §4.1/§5: writers increment,
// readers are tolerant of non-serialized reads.
package stats

import (
	"sync/atomic"
	"time"
)

// Pipeline counts ingestion-pipeline outcomes. Zero value is ready to use.
type Pipeline struct {
	TransactionsReceived atomic.Int64
	TradesExtracted      atomic.Int64
	Rejections           atomic.Int64
	ObservationsStored   atomic.Int64
	Errors               atomic.Int64
	startTime            atomic.Int64 // unix nanos, set once by Start
}

// Start records the process start time. Safe to call once; later calls are
// no-ops.
func (p *Pipeline) Start() {
	p.startTime.CompareAndSwap(0, time.Now().UnixNano())
}

// Snapshot is a point-in-time copy suitable for JSON or Prometheus export.
type Snapshot struct {
	TransactionsReceived int64
	TradesExtracted      int64
	Rejections           int64
	ObservationsStored   int64
	Errors               int64
	UptimeSeconds        float64
}

// Snapshot reads all counters without blocking writers.
func (p *Pipeline) Snapshot() Snapshot {
	start := p.startTime.Load()
	var uptime float64
	if start != 0 {
		uptime = time.Since(time.Unix(0, start)).Seconds()
	}
	return Snapshot{
		TransactionsReceived: p.TransactionsReceived.Load(),
		TradesExtracted:      p.TradesExtracted.Load(),
		Rejections:           p.Rejections.Load(),
		ObservationsStored:   p.ObservationsStored.Load(),
		Errors:               p.Errors.Load(),
		UptimeSeconds:        uptime,
	}
}
