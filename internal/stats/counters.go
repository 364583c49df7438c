// Package stats holds the process-wide counters shared by the ingest,
// task and notification services.
package stats

import "sync/atomic"

// Counters tracks the number of videos stored since the last
// notification and the number of eligible videos currently present
// in the watched tree. All methods are safe for concurrent use.
type Counters struct {
	processed atomic.Int64
	eligible  atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Processed int64 `json:"processed"`
	Eligible  int64 `json:"eligible"`
}

func New() *Counters {
	return &Counters{}
}

func (c *Counters) IncrementProcessed() { c.processed.Add(1) }

func (c *Counters) Processed() int64 { return c.processed.Load() }

// TakeProcessed returns the processed count and resets it to zero in a
// single step, so increments racing with a notification are carried
// over to the next interval instead of being lost.
func (c *Counters) TakeProcessed() int64 { return c.processed.Swap(0) }

func (c *Counters) AddEligible(delta int64) { c.eligible.Add(delta) }

// SetEligible replaces the eligible count with a freshly computed value.
func (c *Counters) SetEligible(count int64) { c.eligible.Store(count) }

func (c *Counters) Eligible() int64 { return c.eligible.Load() }

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{Processed: c.Processed(), Eligible: c.Eligible()}
}
