// Package health derives a coarse connection signal from consecutive spin failures.
package health

import (
	"sync"

	"github.com/pushchain/spin-relay/spinClient/metrics"
)

// Status is the advisory connection health.
type Status string

const (
	StatusGood     Status = "good"
	StatusDegraded Status = "degraded"
	StatusPoor     Status = "poor"
)

const poorThreshold = 3

// Snapshot is the tracker state at one point in time.
type Snapshot struct {
	Status   Status `json:"status"`
	Failures int    `json:"consecutive_failures"`
}

// Tracker counts consecutive failures. It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	failures int
}

// NewTracker returns a tracker in the good state.
func NewTracker() *Tracker {
	metrics.ConnectionHealthFailures.Set(0)
	return &Tracker{}
}

// RecordSuccess resets the counter.
func (t *Tracker) RecordSuccess() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = 0
	metrics.ConnectionHealthFailures.Set(0)
	return t.snapshotLocked()
}

// RecordFailure counts a submission exception or confirmation timeout.
func (t *Tracker) RecordFailure() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures++
	metrics.ConnectionHealthFailures.Set(float64(t.failures))
	return t.snapshotLocked()
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Status returns the current status.
func (t *Tracker) Status() Status {
	return t.Snapshot().Status
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{Status: statusFor(t.failures), Failures: t.failures}
}

func statusFor(failures int) Status {
	switch {
	case failures == 0:
		return StatusGood
	case failures < poorThreshold:
		return StatusDegraded
	default:
		return StatusPoor
	}
}
